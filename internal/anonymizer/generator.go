package anonymizer

import (
	"fmt"
	"io"
	"math/rand"
	"sync"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

// Generator produces substitute values, one operation per substitute kind.
// Engines only talk to this interface so tests can inject fixed sequences.
type Generator interface {
	ID() (string, error)
	Email() (string, error)
	Phone() (string, error)
	Address() (string, error)
}

// FakeGenerator is the production Generator backed by gofakeit and
// random (version 4) UUIDs. It is safe for concurrent use.
type FakeGenerator struct {
	mu      sync.Mutex
	faker   *gofakeit.Faker
	entropy io.Reader // nil means crypto/rand via uuid.NewRandom
}

// NewFakeGenerator creates a generator. A zero seed gives non-reproducible
// output; any other seed makes every generated value reproducible.
func NewFakeGenerator(seed int64) *FakeGenerator {
	g := &FakeGenerator{faker: gofakeit.New(seed)}
	if seed != 0 {
		g.entropy = rand.New(rand.NewSource(seed))
	}
	return g
}

// ID returns a random identifier in canonical dashed hex form
func (g *FakeGenerator) ID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	var (
		id  uuid.UUID
		err error
	)
	if g.entropy != nil {
		id, err = uuid.NewRandomFromReader(g.entropy)
	} else {
		id, err = uuid.NewRandom()
	}
	if err != nil {
		return "", fmt.Errorf("failed to generate identifier: %w", err)
	}
	return id.String(), nil
}

// Email returns a syntactically valid fake email address
func (g *FakeGenerator) Email() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.faker.Email(), nil
}

// Phone returns a formatted fake phone number
func (g *FakeGenerator) Phone() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.faker.PhoneFormatted(), nil
}

// Address returns a fake postal address
func (g *FakeGenerator) Address() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	info := g.faker.Address()
	if info == nil || info.Address == "" {
		return "", fmt.Errorf("failed to generate address")
	}
	return info.Address, nil
}
