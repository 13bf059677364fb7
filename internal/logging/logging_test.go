package logging

import (
	"testing"

	"github.com/sirupsen/logrus"
)

func TestNew_VerboseSetsInfoLevel(t *testing.T) {
	log := New(Options{Verbose: true, Stdout: true})
	if log.GetLevel() != logrus.InfoLevel {
		t.Fatalf("expected InfoLevel, got %v", log.GetLevel())
	}
}

func TestNew_QuietSetsErrorLevel(t *testing.T) {
	log := New(Options{Verbose: false, Stdout: true})
	if log.GetLevel() != logrus.ErrorLevel {
		t.Fatalf("expected ErrorLevel, got %v", log.GetLevel())
	}
}
