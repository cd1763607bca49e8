package memory

import (
	"context"
	"sync"

	"livepoll-service/internal/app"
)

// CodeRegistry tracks reserved access codes in process memory.
type CodeRegistry struct {
	generate func() (string, error)

	mu    sync.Mutex
	codes map[string]struct{}
}

func NewCodeRegistry() *CodeRegistry {
	return NewCodeRegistryWithGenerator(app.GenerateAccessCode)
}

// NewCodeRegistryWithGenerator is test-only for forcing collisions.
func NewCodeRegistryWithGenerator(generate func() (string, error)) *CodeRegistry {
	return &CodeRegistry{
		generate: generate,
		codes:    make(map[string]struct{}),
	}
}

func (r *CodeRegistry) Reserve(_ context.Context) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := 0; i < app.MaxCodeAttempts; i++ {
		code, err := r.generate()
		if err != nil {
			return "", err
		}
		if _, taken := r.codes[code]; taken {
			continue
		}
		r.codes[code] = struct{}{}
		return code, nil
	}
	return "", app.ErrCodeSpaceExhausted
}

func (r *CodeRegistry) Release(_ context.Context, code string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.codes, code)
	return nil
}
