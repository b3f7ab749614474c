package config

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	App       AppConfig
	DB        DBConfig
	Generator GeneratorConfig
	Pipeline  PipelineConfig
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Generator.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

type AppConfig struct {
	Env          string `envconfig:"SHOPLAKE_APP_ENV" default:"dev"`
	LogLevel     string `envconfig:"SHOPLAKE_LOG_LEVEL" default:"info"`
	LogWarnStack bool   `envconfig:"SHOPLAKE_LOG_WARN_STACK" default:"false"`
}

func (a AppConfig) IsDev() bool {
	return strings.EqualFold(a.Env, AppEnvDev)
}

func (a AppConfig) IsProd() bool {
	return strings.EqualFold(a.Env, AppEnvProd)
}

type DBConfig struct {
	DSN    string `envconfig:"SHOPLAKE_DB_DSN" required:"true"`
	Driver string `envconfig:"SHOPLAKE_DB_DRIVER" default:"postgres"`

	MaxOpenConns int `envconfig:"SHOPLAKE_DB_MAX_OPEN_CONNS" default:"10"`
	MaxIdleConns int `envconfig:"SHOPLAKE_DB_MAX_IDLE_CONNS" default:"5"`
}

// GeneratorConfig controls the synthetic snapshot generator. The defect rates
// model upstream data-quality noise and are applied from a dedicated RNG
// stream so that tuning them never shifts the base data shape.
type GeneratorConfig struct {
	Seed      int64  `envconfig:"SHOPLAKE_GEN_SEED" default:"42"`
	StartDate string `envconfig:"SHOPLAKE_GEN_START_DATE" default:"2025-01-01" validate:"datetime=2006-01-02"`
	Days      int    `envconfig:"SHOPLAKE_GEN_DAYS" default:"365" validate:"gte=1"`
	DataDir   string `envconfig:"SHOPLAKE_GEN_DATA_DIR" default:"raw_data" validate:"required"`

	ProductCount       int `envconfig:"SHOPLAKE_GEN_PRODUCT_COUNT" default:"100" validate:"gte=1"`
	CustomersPerDayMin int `envconfig:"SHOPLAKE_GEN_CUSTOMERS_PER_DAY_MIN" default:"10" validate:"gte=1"`
	CustomersPerDayMax int `envconfig:"SHOPLAKE_GEN_CUSTOMERS_PER_DAY_MAX" default:"50" validate:"gtefield=CustomersPerDayMin"`
	OrdersPerDayMin    int `envconfig:"SHOPLAKE_GEN_ORDERS_PER_DAY_MIN" default:"100" validate:"gte=1"`
	OrdersPerDayMax    int `envconfig:"SHOPLAKE_GEN_ORDERS_PER_DAY_MAX" default:"500" validate:"gtefield=OrdersPerDayMin"`
	ItemsPerOrderMax   int `envconfig:"SHOPLAKE_GEN_ITEMS_PER_ORDER_MAX" default:"5" validate:"gte=1"`

	DuplicatePersonRate float64 `envconfig:"SHOPLAKE_GEN_DUPLICATE_PERSON_RATE" default:"0.04" validate:"gte=0,lte=1"`
	DuplicateRowRate    float64 `envconfig:"SHOPLAKE_GEN_DUPLICATE_ROW_RATE" default:"0.04" validate:"gte=0,lte=1"`
	NullNameRate        float64 `envconfig:"SHOPLAKE_GEN_NULL_NAME_RATE" default:"0.02" validate:"gte=0,lte=1"`
	NullCountryRate     float64 `envconfig:"SHOPLAKE_GEN_NULL_COUNTRY_RATE" default:"0.01" validate:"gte=0,lte=1"`
	LowercaseNameRate   float64 `envconfig:"SHOPLAKE_GEN_LOWERCASE_NAME_RATE" default:"0.10" validate:"gte=0,lte=1"`
	InvalidEmailRate    float64 `envconfig:"SHOPLAKE_GEN_INVALID_EMAIL_RATE" default:"0.02" validate:"gte=0,lte=1"`
}

// Validate cross-checks the generator settings beyond what envconfig parses.
func (g GeneratorConfig) Validate() error {
	if err := validator.New().Struct(g); err != nil {
		return fmt.Errorf("invalid generator config: %w", err)
	}
	return nil
}

type PipelineConfig struct {
	BatchSize int `envconfig:"SHOPLAKE_PIPELINE_BATCH_SIZE" default:"500"`

	// MaxDataLoss is the tolerated raw->staging row loss fraction before the
	// audit flags the run.
	MaxDataLoss float64 `envconfig:"SHOPLAKE_PIPELINE_MAX_DATA_LOSS" default:"0.20"`
}
