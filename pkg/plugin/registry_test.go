package plugin

import (
	"context"
	"errors"
	"testing"

	"github.com/AnimatorJoe/distributor/internal/core"
)

type stubProcessor struct{ name string }

func (p *stubProcessor) Name() string                  { return p.name }
func (p *stubProcessor) Init(cfg map[string]any) error { return nil }
func (p *stubProcessor) Process(ctx context.Context, rec *core.LogRecord) error {
	return nil
}

func TestRegisterAndGetProcessor(t *testing.T) {
	RegisterProcessor("stub-a", func() Processor { return &stubProcessor{name: "stub-a"} })

	factory, err := GetProcessorFactory("stub-a")
	if err != nil {
		t.Fatalf("GetProcessorFactory: %v", err)
	}
	if got := factory().Name(); got != "stub-a" {
		t.Errorf("Name: got %q, want stub-a", got)
	}
}

func TestGetProcessorFactory_NotFound(t *testing.T) {
	_, err := GetProcessorFactory("never-registered")
	if !errors.Is(err, ErrProcessorNotFound) {
		t.Errorf("expected ErrProcessorNotFound, got %v", err)
	}
}

func TestRegisterProcessor_DuplicatePanics(t *testing.T) {
	RegisterProcessor("stub-dup", func() Processor { return &stubProcessor{name: "stub-dup"} })

	defer func() {
		if recover() == nil {
			t.Error("duplicate registration should panic")
		}
	}()
	RegisterProcessor("stub-dup", func() Processor { return &stubProcessor{name: "stub-dup"} })
}

func TestRegisterProcessor_EmptyNamePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("empty name should panic")
		}
	}()
	RegisterProcessor("", func() Processor { return &stubProcessor{} })
}

func TestListProcessors_Sorted(t *testing.T) {
	RegisterProcessor("stub-z", func() Processor { return &stubProcessor{name: "stub-z"} })
	RegisterProcessor("stub-b", func() Processor { return &stubProcessor{name: "stub-b"} })

	names := ListProcessors()
	for i := 1; i < len(names); i++ {
		if names[i-1] >= names[i] {
			t.Fatalf("names not sorted: %v", names)
		}
	}
}
