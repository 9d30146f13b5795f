// Package config carrega a configuração dos processos do honeypot: PLC emulado,
// controlador e monitor hub.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/kuldeepsharma1/cyber-honey-pot/internal/controller"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/ladder"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/logger"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/monitorclient"
	"github.com/kuldeepsharma1/cyber-honey-pot/internal/plc"
)

// AppConfig contém toda a configuração da aplicação
type AppConfig struct {
	Own        OwnConfig        `json:"own" yaml:"own"`
	Target     TargetConfig     `json:"target" yaml:"target"`
	Monitor    MonitorConfig    `json:"monitor" yaml:"monitor"`
	PLC        PLCConfig        `json:"plc" yaml:"plc"`
	Controller ControllerConfig `json:"controller" yaml:"controller"`
	Hub        HubConfig        `json:"hub" yaml:"hub"`
	Admin      AdminConfig      `json:"admin" yaml:"admin"`
	ScanDetect ScanDetectConfig `json:"scan_detect" yaml:"scan_detect"`
	Redis      RedisConfig      `json:"redis" yaml:"redis"`
	Audit      AuditConfig      `json:"audit" yaml:"audit"`
	Security   SecurityConfig   `json:"security" yaml:"security"`
	Log        logger.Config    `json:"log" yaml:"log"`

	// Ladders adiciona ou substitui tabelas de rungs pelo ID
	Ladders map[string][]ladder.RungSpec `json:"ladders,omitempty" yaml:"ladders,omitempty" validate:"dive,keys,required,endkeys,len=8,dive"`
}

// OwnConfig identifica o próprio agente
type OwnConfig struct {
	ID       string `json:"id" yaml:"id" validate:"required"`
	IP       string `json:"ip" yaml:"ip" validate:"required,ip"`
	Protocol string `json:"protocol" yaml:"protocol" validate:"required,oneof=modbus s7comm"`
	LadderID string `json:"ladder_id" yaml:"ladder_id"`
}

// TargetConfig identifica o PLC exercitado pelo controlador
type TargetConfig struct {
	ID   string `json:"id" yaml:"id"`
	IP   string `json:"ip" yaml:"ip" validate:"omitempty,ip"`
	Port int    `json:"port" yaml:"port" validate:"gte=0,lte=65535"`
	Rack int    `json:"rack" yaml:"rack"`
	Slot int    `json:"slot" yaml:"slot"`
}

// MonitorConfig aponta para o monitor hub
type MonitorConfig struct {
	Enabled               bool   `json:"enabled" yaml:"enabled"`
	Host                  string `json:"host" yaml:"host"`
	Port                  int    `json:"port" yaml:"port" validate:"gte=0,lte=65535"`
	ReportIntervalSeconds int    `json:"report_interval_seconds" yaml:"report_interval_seconds" validate:"gte=0"`
	QueueSize             int    `json:"queue_size" yaml:"queue_size" validate:"gte=0"`
}

// PLCConfig contém as opções do PLC emulado
type PLCConfig struct {
	BindAddress string   `json:"bind_address" yaml:"bind_address" validate:"required,hostname_port"`
	AllowRead   []string `json:"allow_read" yaml:"allow_read" validate:"dive,ip"`
	AllowWrite  []string `json:"allow_write" yaml:"allow_write" validate:"dive,ip"`
	UnitID      uint8    `json:"unit_id" yaml:"unit_id"`
}

// ControllerConfig contém os tempos do laço de verificação e o serviço UDP
type ControllerConfig struct {
	PollIntervalMS       int    `json:"poll_interval_ms" yaml:"poll_interval_ms" validate:"gte=0"`
	CycleIntervalSeconds int    `json:"cycle_interval_seconds" yaml:"cycle_interval_seconds" validate:"gte=0"`
	WriteDelayMS         int    `json:"write_delay_ms" yaml:"write_delay_ms" validate:"gte=0"`
	SettleDelayMS        int    `json:"settle_delay_ms" yaml:"settle_delay_ms" validate:"gte=0"`
	UDPAddress           string `json:"udp_address" yaml:"udp_address"`
	ErrorFlag            string `json:"error_flag" yaml:"error_flag"`
	FailureThreshold     int    `json:"failure_threshold" yaml:"failure_threshold" validate:"gte=0"`
	ResetTimeoutSeconds  int    `json:"reset_timeout_seconds" yaml:"reset_timeout_seconds" validate:"gte=0"`
}

// HubConfig contém as opções do monitor hub
type HubConfig struct {
	Address        string `json:"address" yaml:"address" validate:"required"`
	StreamAddress  string `json:"stream_address" yaml:"stream_address"`
	TimeoutSeconds int    `json:"timeout_seconds" yaml:"timeout_seconds" validate:"gte=0"`
	RecordLimit    int    `json:"record_limit" yaml:"record_limit" validate:"gte=0"`
}

// AdminConfig contém o endereço da API de administração do PLC emulado
type AdminConfig struct {
	Address string `json:"address" yaml:"address"`
}

// ScanDetectConfig contém as opções do detector de varredura de portas (somente Linux, root)
type ScanDetectConfig struct {
	Enabled   bool   `json:"enabled" yaml:"enabled"`
	Threshold int    `json:"threshold" yaml:"threshold" validate:"gte=0"`
	Address   string `json:"address" yaml:"address" validate:"omitempty,ip"`
}

// DefaultConfig retorna uma configuração padrão
func DefaultConfig() *AppConfig {
	return &AppConfig{
		Own: OwnConfig{
			ID:       "plc-01",
			IP:       "127.0.0.1",
			Protocol: "modbus",
		},
		Target: TargetConfig{
			ID:   "plc-01",
			IP:   "127.0.0.1",
			Port: 502,
			Rack: 0,
			Slot: 1,
		},
		Monitor: MonitorConfig{
			Enabled:               true,
			Host:                  "127.0.0.1",
			Port:                  5000,
			ReportIntervalSeconds: 5,
			QueueSize:             monitorclient.DefaultQueueSize,
		},
		PLC: PLCConfig{
			BindAddress: "0.0.0.0:502",
			AllowRead:   []string{},
			AllowWrite:  []string{},
			UnitID:      1,
		},
		Controller: ControllerConfig{
			PollIntervalMS:       500,
			CycleIntervalSeconds: 5,
			WriteDelayMS:         100,
			SettleDelayMS:        1000,
			UDPAddress:           "0.0.0.0:3001",
			ErrorFlag:            "plc-output-mismatch",
			FailureThreshold:     3,
			ResetTimeoutSeconds:  10,
		},
		Hub: HubConfig{
			Address:        "0.0.0.0:5000",
			StreamAddress:  "0.0.0.0:5001",
			TimeoutSeconds: 30,
			RecordLimit:    10,
		},
		Admin: AdminConfig{
			Address: "0.0.0.0:8080",
		},
		ScanDetect: ScanDetectConfig{
			Enabled:   false,
			Threshold: 100,
		},
		Redis:    LoadRedisConfig(),
		Audit:    LoadAuditConfig(),
		Security: LoadSecurityConfig(),
		Log: logger.Config{
			Level:      "info",
			TimeFormat: time.RFC3339,
		},
	}
}

var validate = validator.New()

// Validate verifica os campos obrigatórios e os formatos
func (c *AppConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("configuração inválida: %w", err)
	}
	if _, err := c.LadderRegistry(); err != nil {
		return fmt.Errorf("configuração inválida: %w", err)
	}
	return nil
}

// LadderRegistry monta o registro com as tabelas embutidas mais as da configuração.
// O PLC emulado e o controlador usam o mesmo registro.
func (c *AppConfig) LadderRegistry() (*ladder.Registry, error) {
	r := ladder.NewRegistry()
	ids := make([]string, 0, len(c.Ladders))
	for id := range c.Ladders {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := r.RegisterSpecs(id, c.Ladders[id]); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// LoadConfig carrega a configuração de um arquivo JSON ou YAML (pela extensão)
// sobre os valores padrão. Um arquivo inexistente é criado com os padrões.
func LoadConfig(configFile string) (*AppConfig, error) {
	config := DefaultConfig()

	if configFile == "" {
		return config, nil
	}

	if _, err := os.Stat(configFile); os.IsNotExist(err) {
		dir := filepath.Dir(configFile)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("erro ao criar diretório de configuração: %w", err)
		}
		if err := SaveConfig(configFile, config); err != nil {
			return nil, fmt.Errorf("erro ao salvar configuração padrão: %w", err)
		}
		return config, nil
	}

	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("erro ao ler arquivo de configuração: %w", err)
	}

	if isYAML(configFile) {
		err = yaml.Unmarshal(data, config)
	} else {
		err = json.Unmarshal(data, config)
	}
	if err != nil {
		return nil, fmt.Errorf("erro ao decodificar configuração: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

// SaveConfig salva a configuração em um arquivo
func SaveConfig(configFile string, config *AppConfig) error {
	var (
		data []byte
		err  error
	)
	if isYAML(configFile) {
		data, err = yaml.Marshal(config)
	} else {
		data, err = json.MarshalIndent(config, "", "  ")
	}
	if err != nil {
		return fmt.Errorf("erro ao codificar configuração: %w", err)
	}

	if err := os.WriteFile(configFile, data, 0644); err != nil {
		return fmt.Errorf("erro ao escrever arquivo de configuração: %w", err)
	}
	return nil
}

func isYAML(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".yaml" || ext == ".yml"
}

// Identity monta o descritor de login do agente
func (c *AppConfig) Identity(agentType string) monitorclient.Identity {
	id := monitorclient.Identity{
		ID:       c.Own.ID,
		IP:       c.Own.IP,
		Type:     agentType,
		Protocol: c.Own.Protocol,
		LadderID: c.Own.LadderID,
	}
	if agentType == monitorclient.TypeController {
		id.TargetID = c.Target.ID
		id.TargetIP = c.Target.IP
	}
	return id
}

// MonitorClient retorna a configuração do cliente do hub; HubURL vazio se desativado
func (c *AppConfig) MonitorClient() monitorclient.Config {
	if !c.Monitor.Enabled {
		return monitorclient.Config{}
	}
	return monitorclient.Config{
		HubURL:         monitorclient.HubURL(c.Monitor.Host, c.Monitor.Port),
		ReportInterval: time.Duration(c.Monitor.ReportIntervalSeconds) * time.Second,
		QueueSize:      c.Monitor.QueueSize,
	}
}

// PLCTarget retorna a configuração do cliente do PLC alvo
func (c *AppConfig) PLCTarget() plc.TargetConfig {
	return plc.TargetConfig{
		Protocol: c.Own.Protocol,
		IP:       c.Target.IP,
		Port:     c.Target.Port,
		Rack:     c.Target.Rack,
		Slot:     c.Target.Slot,
		UnitID:   c.PLC.UnitID,
		Timeout:  2 * time.Second,
	}
}

// Verifier retorna os tempos do laço de verificação
func (c *AppConfig) Verifier() controller.Config {
	d := controller.DefaultConfig()
	if c.Controller.PollIntervalMS > 0 {
		d.PollInterval = time.Duration(c.Controller.PollIntervalMS) * time.Millisecond
	}
	if c.Controller.CycleIntervalSeconds > 0 {
		d.CycleInterval = time.Duration(c.Controller.CycleIntervalSeconds) * time.Second
	}
	d.WriteDelay = time.Duration(c.Controller.WriteDelayMS) * time.Millisecond
	d.SettleDelay = time.Duration(c.Controller.SettleDelayMS) * time.Millisecond
	return d
}
