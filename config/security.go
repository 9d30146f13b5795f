package config

// SecurityConfig contém as proteções das APIs HTTP
type SecurityConfig struct {
	RateLimit struct {
		Enabled     bool `json:"enabled" yaml:"enabled"`
		RequestsMax int  `json:"requests_max" yaml:"requests_max" validate:"gte=0"`
		WindowSecs  int  `json:"window_seconds" yaml:"window_seconds" validate:"gte=0"`
	} `json:"rate_limit" yaml:"rate_limit"`

	CORS struct {
		AllowOrigins []string `json:"allow_origins" yaml:"allow_origins"`
		AllowMethods []string `json:"allow_methods" yaml:"allow_methods"`
		AllowHeaders []string `json:"allow_headers" yaml:"allow_headers"`
		MaxAge       int      `json:"max_age" yaml:"max_age"`
	} `json:"cors" yaml:"cors"`
}

// LoadSecurityConfig carrega as configurações de segurança
func LoadSecurityConfig() SecurityConfig {
	var config SecurityConfig

	// a ingestão /dataPost nunca é limitada, só a API de administração do PLC
	config.RateLimit.Enabled = true
	config.RateLimit.RequestsMax = 100
	config.RateLimit.WindowSecs = 60

	config.CORS.AllowOrigins = []string{"*"}
	config.CORS.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	config.CORS.AllowHeaders = []string{"Origin", "Content-Type", "Accept"}
	config.CORS.MaxAge = 86400 // 24 horas

	return config
}
