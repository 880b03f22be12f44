package devops

import (
	"context"
	"fmt"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// AppConfig is the full service configuration. It is stored as YAML either
// in a local file (TENANTS_CONFIG_FILE) or in the SSM parameter
// "sommerfest-tenants"; secrets can be overridden through the environment.
type AppConfig struct {
	RegistryDSN    string `yaml:"registryDsn"`    // includes the registry database
	TenantPoolDSN  string `yaml:"tenantPoolDsn"`  // no database, schema switched per tenant
	RegistryDBName string `yaml:"registryDbName"` // excluded from schema enumeration
	MaxConnections int    `yaml:"maxConnections"`

	MigrationsDir string `yaml:"migrationsDir"`
	TenantsDir    string `yaml:"tenantsDir"`

	VhostDir    string `yaml:"vhostDir"`
	ReloaderURL string `yaml:"reloaderUrl"`
	BaseDomain  string `yaml:"baseDomain"`
	Upstream    string `yaml:"upstream"`

	SyncCooldownMinutes int `yaml:"syncCooldownMinutes"`

	Listen    string `yaml:"listen"`
	JWTSecret string `yaml:"jwtSecret"`
}

var (
	once    sync.Once
	loaded  *AppConfig
	loadErr error
)

func LoadAppConfig(ctx context.Context) (*AppConfig, error) {
	once.Do(func() {
		var raw []byte

		if file := os.Getenv("TENANTS_CONFIG_FILE"); file != "" {
			raw, loadErr = os.ReadFile(file)
			if loadErr != nil {
				loadErr = fmt.Errorf("read config file: %w", loadErr)
				return
			}
		} else {
			paramName := "sommerfest-tenants"

			cfg, err := config.LoadDefaultConfig(ctx)
			if err != nil {
				loadErr = fmt.Errorf("load aws config: %w", err)
				return
			}

			client := ssm.NewFromConfig(cfg)

			out, err := client.GetParameter(ctx, &ssm.GetParameterInput{
				Name:           aws.String(paramName),
				WithDecryption: aws.Bool(true),
			})
			if err != nil {
				loadErr = fmt.Errorf("get parameter: %w", err)
				return
			}
			raw = []byte(*out.Parameter.Value)
		}

		var parsed AppConfig
		if err := yaml.Unmarshal(raw, &parsed); err != nil {
			loadErr = fmt.Errorf("unmarshal yaml: %w", err)
			return
		}

		if secret := os.Getenv("JWT_SECRET"); secret != "" {
			parsed.JWTSecret = secret
		}
		if parsed.Listen == "" {
			parsed.Listen = ":8090"
		}
		if parsed.MaxConnections == 0 {
			parsed.MaxConnections = 30
		}

		loaded = &parsed
	})

	return loaded, loadErr
}
