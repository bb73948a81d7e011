package config

const (
	EnvPrefix = "CRIBNOSH"

	AppEnvDev  = "dev"
	AppEnvProd = "prod"

	EnvAppEnv          = "CRIBNOSH_APP_ENV"
	EnvPort            = "CRIBNOSH_APP_PORT"
	EnvDBDSN           = "CRIBNOSH_DB_DSN"
	EnvDBHost          = "CRIBNOSH_DB_HOST"
	EnvDBUser          = "CRIBNOSH_DB_USER"
	EnvDBName          = "CRIBNOSH_DB_NAME"
	EnvDBPassword      = "CRIBNOSH_DB_PASSWORD"
	EnvRedisURL        = "CRIBNOSH_REDIS_URL"
	EnvJWTSecret       = "CRIBNOSH_JWT_SECRET"
	EnvJWTIssuer       = "CRIBNOSH_JWT_ISSUER"
	EnvGCPProjectID    = "CRIBNOSH_GCP_PROJECT_ID"
	EnvPubSubDomain    = "CRIBNOSH_PUBSUB_DOMAIN_TOPIC"
	EnvRefundWindow    = "CRIBNOSH_ORDERS_REFUND_WINDOW_HOURS"
	EnvWebhookTargets  = "CRIBNOSH_WEBHOOK_TARGETS"
	EnvSupportAIAgent  = "CRIBNOSH_SUPPORT_AI_AGENT_USER_ID"
	EnvRabbitMQURL     = "CRIBNOSH_RABBITMQ_URL"
	EnvAllowedOrigins  = "CRIBNOSH_CORS_ALLOWED_ORIGINS"
	EnvEnforceSessions = "CRIBNOSH_JWT_ENFORCE_SESSIONS"
)

var legacyDBEnvVars = []string{EnvDBHost, EnvDBUser, EnvDBName}
