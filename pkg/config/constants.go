package config

const (
	// EnvPrefix is applied by envconfig to every variable below.
	EnvPrefix = ""

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvDBDSN  = "UF_DB_DSN"
	EnvDBHost = "UF_DB_HOST"
	EnvDBUser = "UF_DB_USER"
	EnvDBName = "UF_DB_NAME"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
