// internal/utils/logger/config.go
package logger

type Config struct {
	LogFile     string
	MaxSize     int  // мегабайты
	MaxAge      int  // дни
	MaxBackups  int  // количество файлов
	Compress    bool // сжимать ротированные файлы
	Development bool
	// ConsoleOff leaves only the file core, used by the TUI so logs do not
	// draw over the screen.
	ConsoleOff bool
}

// DefaultConfig возвращает конфигурацию по умолчанию
func DefaultConfig() *Config {
	return &Config{
		LogFile:     "logs/trader.log",
		MaxSize:     50, // 50 MB
		MaxAge:      14, // 14 дней
		MaxBackups:  5,
		Compress:    true,
		Development: false,
	}
}
