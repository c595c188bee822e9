package config

// EnvPrefix is the envconfig prefix for every setting.
const EnvPrefix = "otodealz"

const (
	AppEnvDev  = "dev"
	AppEnvProd = "prod"
)

const (
	EnvDBDSN  = "OTODEALZ_DB_DSN"
	EnvDBHost = "OTODEALZ_DB_HOST"
	EnvDBUser = "OTODEALZ_DB_USER"
	EnvDBName = "OTODEALZ_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
