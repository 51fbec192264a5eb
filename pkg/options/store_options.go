package options

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

var _ IOptions = (*StoreOptions)(nil)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
)

// StoreOptions selects and configures the persistence adapter.
type StoreOptions struct {
	Driver string `json:"driver" mapstructure:"driver"`

	// DSN is a lib/pq connection string, used by the postgres driver.
	DSN string `json:"dsn" mapstructure:"dsn"`

	MaxOpenConns    int           `json:"max-open-conns" mapstructure:"max-open-conns"`
	ConnMaxLifetime time.Duration `json:"conn-max-lifetime" mapstructure:"conn-max-lifetime"`
}

func NewStoreOptions() *StoreOptions {
	return &StoreOptions{
		Driver:          StoreMemory,
		MaxOpenConns:    10,
		ConnMaxLifetime: 30 * time.Minute,
	}
}

func (o *StoreOptions) Validate() []error {
	if o == nil {
		return nil
	}

	var errs []error
	switch o.Driver {
	case StoreMemory:
	case StorePostgres:
		if o.DSN == "" {
			errs = append(errs, fmt.Errorf("--store.dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("--store.driver: unknown driver %q", o.Driver))
	}
	if o.MaxOpenConns <= 0 {
		errs = append(errs, fmt.Errorf("--store.max-open-conns must be positive"))
	}
	return errs
}

func (o *StoreOptions) AddFlags(fs *pflag.FlagSet, prefixes ...string) {
	fs.StringVar(&o.Driver, flagName("store.driver", prefixes...), o.Driver, "Persistence driver: 'memory' or 'postgres'.")
	fs.StringVar(&o.DSN, flagName("store.dsn", prefixes...), o.DSN, "Postgres connection string.")
	fs.IntVar(&o.MaxOpenConns, flagName("store.max-open-conns", prefixes...), o.MaxOpenConns, "Maximum open database connections.")
	fs.DurationVar(&o.ConnMaxLifetime, flagName("store.conn-max-lifetime", prefixes...), o.ConnMaxLifetime, "Maximum lifetime of a database connection.")
}
