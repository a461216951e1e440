package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	DefaultOutputPath = "./merged_GSTR2B.xlsx"
	DefaultAddr       = ":8080"

	maxSheetNameLen = 31
)

// SheetConfig описывает один известный лист: имя и число строк шапки.
type SheetConfig struct {
	Name       string `toml:"name"`
	HeaderRows int    `toml:"header_rows"`
}

type Config struct {
	OutputPath string        `toml:"output"`
	Sheets     []SheetConfig `toml:"sheets"`
	Server     ServerConfig  `toml:"server"`
	Verbose    bool          `toml:"verbose"`
}

type ServerConfig struct {
	Addr           string   `toml:"addr"`
	SessionTTL     Duration `toml:"session_ttl"`
	MaxUploadBytes int64    `toml:"max_upload_bytes"`
}

// Duration time.Duration в TOML записывается строкой вида "30m".
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// DefaultSheets листы формы GSTR-2B. Первый лист становится активным в результате.
func DefaultSheets() []SheetConfig {
	return []SheetConfig{
		{Name: "B2B", HeaderRows: 6},
		{Name: "B2BA", HeaderRows: 7},
		{Name: "B2B-CDNR", HeaderRows: 6},
		{Name: "B2B-CDNRA", HeaderRows: 7},
	}
}

func Default() *Config {
	return &Config{
		OutputPath: DefaultOutputPath,
		Sheets:     DefaultSheets(),
		Server: ServerConfig{
			Addr:           DefaultAddr,
			SessionTTL:     Duration(time.Hour),
			MaxUploadBytes: 64 << 20,
		},
	}
}

// Load читает TOML-файл поверх значений по умолчанию.
// Пустой path означает конфигурацию по умолчанию. Переменные окружения применяются последними.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения конфигурации %s: %w", path, err)
		}
		// список листов из файла заменяет список по умолчанию целиком
		cfg.Sheets = nil
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("ошибка разбора конфигурации %s: %w", path, err)
		}
		if len(cfg.Sheets) == 0 {
			cfg.Sheets = DefaultSheets()
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// Нормализация путей
	cfg.OutputPath = filepath.Clean(cfg.OutputPath)

	return cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("GSTR2B_OUTPUT"); v != "" {
		c.OutputPath = v
	}
	if v := os.Getenv("GSTR2B_ADDR"); v != "" {
		c.Server.Addr = v
	}
}

func (c *Config) Validate() error {
	if c.OutputPath == "" {
		return errors.New("не указан результирующий файл")
	}
	if c.Server.SessionTTL < 0 {
		return fmt.Errorf("отрицательное время жизни сессии: %s", time.Duration(c.Server.SessionTTL))
	}
	return ValidateSheets(c.Sheets)
}

// ValidateSheets проверяет список листов: непустой, имена уникальны и допустимы для Excel.
func ValidateSheets(sheets []SheetConfig) error {
	if len(sheets) == 0 {
		return errors.New("не задан ни один лист")
	}
	seen := make(map[string]struct{}, len(sheets))
	for i, s := range sheets {
		if s.Name == "" {
			return fmt.Errorf("лист #%d: пустое имя", i+1)
		}
		if len([]rune(s.Name)) > maxSheetNameLen {
			return fmt.Errorf("лист %q: имя длиннее %d символов", s.Name, maxSheetNameLen)
		}
		if strings.ContainsAny(s.Name, `:\/?*[]`) {
			return fmt.Errorf("лист %q: недопустимые символы в имени", s.Name)
		}
		if s.HeaderRows < 0 {
			return fmt.Errorf("лист %q: отрицательное число строк шапки", s.Name)
		}
		// Excel не различает регистр в именах листов
		key := strings.ToLower(s.Name)
		if _, ok := seen[key]; ok {
			return fmt.Errorf("лист %q указан дважды", s.Name)
		}
		seen[key] = struct{}{}
	}
	return nil
}
