package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	ServerPort string
	DBHost     string
	DBPort     int
	DBUser     string
	DBPassword string
	DBName     string
	DBSslMode  string

	RedisURL           string
	SlotAvailabilityCh string

	AWSRegion         string
	SQSVisionQueueURL string

	JWTSecret          string
	JWTExpirationHours time.Duration

	LockTTL       time.Duration
	SweepInterval time.Duration

	OccupiedFrameThreshold int
	EmptyFrameThreshold    int
}

func Load() *Config {
	err := godotenv.Load()
	if err != nil && !os.IsNotExist(err) {
		log.Printf("Warning: could not load .env file: %v", err)
	}

	dbPort, _ := strconv.Atoi(getEnv("DB_PORT", "5432"))
	jwtExpHours, _ := strconv.Atoi(getEnv("JWT_EXPIRATION_HOURS", "24"))
	lockTTLSeconds, _ := strconv.Atoi(getEnv("LOCK_TTL_SECONDS", "60"))
	sweepSeconds, _ := strconv.Atoi(getEnv("SWEEP_INTERVAL_SECONDS", "60"))
	occupiedThreshold, _ := strconv.Atoi(getEnv("OCCUPIED_FRAME_THRESHOLD", "3"))
	emptyThreshold, _ := strconv.Atoi(getEnv("EMPTY_FRAME_THRESHOLD", "3"))

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     dbPort,
		DBUser:     getEnv("DB_USER", "parking"),
		DBPassword: getEnv("DB_PASSWORD", "parking"),
		DBName:     getEnv("DB_NAME", "parking_db"),
		DBSslMode:  getEnv("DB_SSLMODE", "disable"),

		RedisURL:           getEnv("REDIS_URL", "redis://localhost:6379/0"),
		SlotAvailabilityCh: getEnv("SLOT_AVAILABILITY_CHANNEL", "slot_availability"),

		AWSRegion:         getEnv("AWS_REGION", "ap-southeast-1"),
		SQSVisionQueueURL: getEnv("SQS_VISION_QUEUE_URL", ""),

		JWTSecret:          getEnv("JWT_SECRET", "change-me-in-production"),
		JWTExpirationHours: time.Duration(jwtExpHours) * time.Hour,

		LockTTL:       time.Duration(lockTTLSeconds) * time.Second,
		SweepInterval: time.Duration(sweepSeconds) * time.Second,

		OccupiedFrameThreshold: occupiedThreshold,
		EmptyFrameThreshold:    emptyThreshold,
	}
}

func getEnv(key string, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}
