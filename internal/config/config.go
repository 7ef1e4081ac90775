package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig 应用基础信息
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig HTTP 服务配置（健康检查与指标）
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// TCPConfig AMQP 监听配置
type TCPConfig struct {
	Addr           string        `mapstructure:"addr"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	WriteTimeout   time.Duration `mapstructure:"writeTimeout"`
	MaxConnections int           `mapstructure:"maxConnections"`
	AcquireTimeout time.Duration `mapstructure:"acquireTimeout"`
	AcceptRate     int           `mapstructure:"acceptRate"`  // 每秒新建连接数，0 不限
	AcceptBurst    int           `mapstructure:"acceptBurst"` // 突发容量
	ReadBufferSize int           `mapstructure:"readBufferSize"`
}

// AMQPConfig 帧层参数
type AMQPConfig struct {
	ContainerID        string `mapstructure:"containerID"` // 为空时启动时生成
	MaxFrameSize       uint32 `mapstructure:"maxFrameSize"`
	ChannelMax         uint16 `mapstructure:"channelMax"`
	OutputCapacity     int    `mapstructure:"outputCapacity"`
	Trace              bool   `mapstructure:"trace"`
	UnknownOpcodeFatal bool   `mapstructure:"unknownOpcodeFatal"`
}

// LumberjackConfig 日志滚动（lumberjack）配置
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig 日志级别与输出配置
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig Prometheus 指标暴露配置
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// Config 顶层配置结构
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	TCP     TCPConfig     `mapstructure:"tcp"`
	AMQP    AMQPConfig    `mapstructure:"amqp"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// Load 从 YAML/TOML/JSON 文件与环境变量加载配置。
// 若 path 为空，则尝试环境变量 AMQP_CONFIG；否则回退到 configs/example.yaml。
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("AMQP_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	// 环境变量覆盖：前缀 AMQP_，点号替换为下划线，如 AMQP_TCP_ADDR
	v.SetEnvPrefix("AMQP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// 允许缺少配置文件，依赖默认值与环境变量
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate 校验帧层参数
func (c *Config) Validate() error {
	// 协议规定的最小 max-frame-size
	if c.AMQP.MaxFrameSize != 0 && c.AMQP.MaxFrameSize < 512 {
		return fmt.Errorf("amqp.maxFrameSize %d below 512", c.AMQP.MaxFrameSize)
	}
	if c.AMQP.MaxFrameSize != 0 && c.AMQP.OutputCapacity > 0 && uint64(c.AMQP.OutputCapacity) < uint64(c.AMQP.MaxFrameSize) {
		return fmt.Errorf("amqp.outputCapacity %d smaller than maxFrameSize %d", c.AMQP.OutputCapacity, c.AMQP.MaxFrameSize)
	}
	if c.TCP.ReadBufferSize < 0 {
		return fmt.Errorf("tcp.readBufferSize %d negative", c.TCP.ReadBufferSize)
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "amqp-engine")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")

	v.SetDefault("tcp.addr", ":5672")
	v.SetDefault("tcp.readTimeout", "60s")
	v.SetDefault("tcp.writeTimeout", "10s")
	v.SetDefault("tcp.maxConnections", 5000)
	v.SetDefault("tcp.acquireTimeout", "1s")
	v.SetDefault("tcp.acceptRate", 200)
	v.SetDefault("tcp.acceptBurst", 400)
	v.SetDefault("tcp.readBufferSize", 4096)

	v.SetDefault("amqp.containerID", "")
	v.SetDefault("amqp.maxFrameSize", 65536)
	v.SetDefault("amqp.channelMax", 255)
	v.SetDefault("amqp.outputCapacity", 1<<20)
	v.SetDefault("amqp.trace", false)
	v.SetDefault("amqp.unknownOpcodeFatal", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/amqp-engine.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}
