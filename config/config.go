package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
)

// 支持的存储驱动
const (
	DriverMongo  = "mongo"
	DriverMySQL  = "mysql"
	DriverSQLite = "sqlite3"
	DriverMemory = "memory"
)

// 支持的上传后端
const (
	UploadLocal = "local"
	UploadS3    = "s3"
	UploadGCS   = "gcs"
)

// Config 结构体用于存储应用程序的配置信息
type Config struct {
	Port         string
	ClientOrigin string
	BackendURL   string
	JWTSecret    string
	TokenTTL     time.Duration
	LogLevel     string
	Debug        bool

	DBDriver      string
	MongoURI      string
	MongoDatabase string
	MongoTimeout  time.Duration
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	SQLitePath    string

	UploadBackend      string
	UploadFolder       string
	UploadMaxBytes     int64
	LocalStoragePath   string
	S3Region           string
	S3Bucket           string
	GCSProjectID       string
	GCSBucketName      string
	GCSCredentialsFile string

	RecentPostsLimit int
	WSSendBuffer     int
	StoreMaxRetries  int
}

// AppConfig 是全局配置变量
var AppConfig Config

// Init 函数用于初始化配置，配置不合法时直接退出
func Init() {
	// 加载 .env 文件
	if err := godotenv.Load(); err != nil {
		log.Printf("警告：无法加载 .env 文件: %v", err)
	}

	cfg, err := Load()
	if err != nil {
		log.Fatalf("错误：%v", err)
	}
	AppConfig = cfg

	if AppConfig.Debug {
		gin.SetMode(gin.DebugMode)
		log.Println("应用程序运行在调试模式")
	} else {
		gin.SetMode(gin.ReleaseMode)
		log.Println("应用程序运行在生产模式")
	}

	log.Printf("配置加载完成。存储驱动：%s，上传后端：%s", AppConfig.DBDriver, AppConfig.UploadBackend)
}

// Load 从环境变量读取配置并校验
func Load() (Config, error) {
	cfg := Config{
		Port:         getEnv("PORT", "4000"),
		ClientOrigin: getEnv("CLIENT_ORIGIN", "http://localhost:5173"),
		BackendURL:   getEnv("BACKEND_URL", "http://localhost:4000"),
		JWTSecret:    getEnv("JWT_SECRET", ""),
		TokenTTL:     time.Duration(getEnvAsInt("TOKEN_TTL_HOURS", 24*7)) * time.Hour,
		LogLevel:     getEnv("LOG_LEVEL", "info"),
		Debug:        getEnvAsBool("DEBUG", false),

		DBDriver:      getEnv("DB_DRIVER", DriverMongo),
		MongoURI:      getEnv("MONGODB_URI", ""),
		MongoDatabase: getEnv("MONGODB_DATABASE", "classbazz"),
		MongoTimeout:  time.Duration(getEnvAsInt("MONGODB_TIMEOUT_SECONDS", 10)) * time.Second,
		DBHost:        getEnv("DB_HOST", ""),
		DBPort:        getEnv("DB_PORT", "3306"),
		DBUser:        getEnv("DB_USER", ""),
		DBPassword:    getEnv("DB_PASSWORD", ""),
		DBName:        getEnv("DB_NAME", ""),
		SQLitePath:    getEnv("SQLITE_PATH", "classbazz.db"),

		UploadBackend:      getEnv("UPLOAD_BACKEND", UploadLocal),
		UploadFolder:       getEnv("UPLOAD_FOLDER", "classbazz"),
		UploadMaxBytes:     int64(getEnvAsInt("UPLOAD_MAX_BYTES", 10<<20)),
		LocalStoragePath:   getEnv("LOCAL_STORAGE_PATH", "./uploads"),
		S3Region:           getEnv("S3_REGION", ""),
		S3Bucket:           getEnv("S3_BUCKET", ""),
		GCSProjectID:       getEnv("GCS_PROJECT_ID", ""),
		GCSBucketName:      getEnv("GCS_BUCKET_NAME", ""),
		GCSCredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),

		RecentPostsLimit: getEnvAsInt("RECENT_POSTS_LIMIT", 50),
		WSSendBuffer:     getEnvAsInt("WS_SEND_BUFFER", 64),
		StoreMaxRetries:  getEnvAsInt("STORE_MAX_RETRIES", 5),
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate 校验配置完整性
func (c Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT密钥未设置")
	}

	switch c.DBDriver {
	case DriverMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("MongoDB 连接地址未设置")
		}
	case DriverMySQL:
		if c.DBHost == "" || c.DBUser == "" || c.DBName == "" {
			return fmt.Errorf("数据库配置不完整")
		}
	case DriverSQLite:
		if c.SQLitePath == "" {
			return fmt.Errorf("SQLite 路径未设置")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("未知的存储驱动: %s", c.DBDriver)
	}

	switch c.UploadBackend {
	case UploadLocal:
	case UploadS3:
		if c.S3Region == "" || c.S3Bucket == "" {
			return fmt.Errorf("S3 配置不完整")
		}
	case UploadGCS:
		if c.GCSBucketName == "" {
			return fmt.Errorf("GCS 配置不完整")
		}
	default:
		return fmt.Errorf("未知的上传后端: %s", c.UploadBackend)
	}

	if c.RecentPostsLimit <= 0 {
		return fmt.Errorf("RECENT_POSTS_LIMIT 必须大于 0")
	}
	return nil
}

// MySQLDSN 拼接 MySQL 连接字符串
func (c Config) MySQLDSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName)
}

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultVal int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	valStr := getEnv(key, "")
	if val, err := strconv.ParseBool(valStr); err == nil {
		return val
	}
	return defaultVal
}
