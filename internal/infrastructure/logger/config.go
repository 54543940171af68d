package logger

import (
	"os"
	"runtime"
)

type Config struct {
	Level      Level
	Format     string // json, text, console
	Output     string // stdout, stderr, file
	FilePath   string
	MaxSize    int // MB
	MaxBackups int
	MaxAge     int // days
	Compress   bool
	Fields     map[string]string // static fields for k8s/docker
}

// DefaultFields collects process and deployment metadata attached to every entry.
func DefaultFields() map[string]string {
	hostname, _ := os.Hostname()

	fields := map[string]string{
		"hostname":   hostname,
		"go_version": runtime.Version(),
	}

	env := map[string]string{
		"KUBERNETES_NAMESPACE": "k8s_namespace",
		"KUBERNETES_POD_NAME":  "k8s_pod",
		"KUBERNETES_NODE_NAME": "k8s_node",
		"DOCKER_IMAGE":         "docker_image",
		"APP_NAME":             "app_name",
		"APP_VERSION":          "app_version",
		"APP_ENV":              "environment",
	}
	for key, field := range env {
		if v := os.Getenv(key); v != "" {
			fields[field] = v
		}
	}

	return fields
}

func NewDefaultConfig() *Config {
	return &Config{
		Level:      LevelInfo,
		Format:     "console",
		Output:     "stdout",
		MaxSize:    100,
		MaxBackups: 3,
		MaxAge:     28,
		Compress:   true,
		Fields:     DefaultFields(),
	}
}
