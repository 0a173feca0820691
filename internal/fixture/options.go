package fixture

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Rana718/seedgraph/internal/keys"
	"github.com/Rana718/seedgraph/internal/schema"
)

// ValueProvider supplies random values for non-key columns.
type ValueProvider interface {
	Value(entity string, col schema.Column) any
}

type options struct {
	values      ValueProvider
	logger      logrus.FieldLogger
	seed        int64
	settings    keys.Settings
	supplier    keys.KeySupplier
	state       *keys.State
	requireRegs bool
}

// Option configures a Generator.
type Option func(*options) error

// WithValues replaces the default gofakeit backed value provider.
func WithValues(p ValueProvider) Option {
	return func(o *options) error {
		if p == nil {
			return fmt.Errorf("value provider cannot be nil")
		}
		o.values = p
		return nil
	}
}

func WithLogger(l logrus.FieldLogger) Option {
	return func(o *options) error {
		o.logger = l
		return nil
	}
}

// WithSeed makes key selection and default values reproducible. 0 seeds from the clock.
func WithSeed(seed int64) Option {
	return func(o *options) error {
		o.seed = seed
		return nil
	}
}

// WithSettings replaces the default key seeding settings.
func WithSettings(s keys.Settings) Option {
	return func(o *options) error {
		if err := s.Validate(); err != nil {
			return err
		}
		o.settings = s
		return nil
	}
}

// WithKeySupplier installs a custom source of primary key values.
func WithKeySupplier(fn keys.KeySupplier) Option {
	return func(o *options) error {
		o.supplier = fn
		return nil
	}
}

// WithKeyState shares key counters with other generators.
func WithKeyState(s *keys.State) Option {
	return func(o *options) error {
		o.state = s
		return nil
	}
}

// RequireRegistration rejects generating entities without a registered KeyAssigner.
func RequireRegistration() Option {
	return func(o *options) error {
		o.requireRegs = true
		return nil
	}
}
