package config

const EnvPrefix = "SHOPLAKE"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "production"
)

const (
	EnvAppEnv   = "SHOPLAKE_APP_ENV"
	EnvDBDSN    = "SHOPLAKE_DB_DSN"
	EnvDBDriver = "SHOPLAKE_DB_DRIVER"
	EnvGenSeed  = "SHOPLAKE_GEN_SEED"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)
