package internal

import "time"

// ServerConfig defines the hub's environment variables.
type ServerConfig struct {
	Host                 string        `env:"HOST,default=0.0.0.0"`
	Port                 int           `env:"PORT,default=8080"`
	LogLevel             string        `env:"LOG_LEVEL,default=INFO"`
	JWTSecret            string        `env:"JWT_SECRET,required=true"`
	TokenLifetime        time.Duration `env:"TOKEN_LIFETIME,default=24h"`
	RelayQueueSize       int           `env:"RELAY_QUEUE_SIZE,default=256"`
	ConnectionBufferSize int           `env:"CONNECTION_BUFFER_SIZE,default=64"`
	HeartbeatInterval    time.Duration `env:"HEARTBEAT_INTERVAL,default=5s"`
	RestartInterval      time.Duration `env:"RESTART_INTERVAL,default=200ms"`
}

// ClientConfig defines the terminal client's environment variables.
type ClientConfig struct {
	ServerURL        string        `env:"PULSE_SERVER_URL,default=ws://localhost:8080/ws"`
	RoomID           string        `env:"PULSE_ROOM_ID,default=room_one"`
	Token            string        `env:"PULSE_TOKEN,required=true"`
	LogLevel         string        `env:"LOG_LEVEL,default=WARN"`
	SubscribeTimeout time.Duration `env:"SUBSCRIBE_TIMEOUT,default=10s"`
}
