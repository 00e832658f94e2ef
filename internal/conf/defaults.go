// conf/defaults.go default values for settings
package conf

import (
	"time"

	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "nightsound")
	viper.SetDefault("main.log.level", "info")
	viper.SetDefault("main.log.timezone", "Local")
	viper.SetDefault("main.log.console", true)
	viper.SetDefault("main.log.file", false)
	viper.SetDefault("main.log.path", "logs/nightsound.log")
	viper.SetDefault("main.log.maxsize", 50)
	viper.SetDefault("main.log.maxage", 30)
	viper.SetDefault("main.log.maxbackups", 5)
	viper.SetDefault("main.log.compress", false)

	viper.SetDefault("capture.source", "device")
	viper.SetDefault("capture.device", "")
	viper.SetDefault("capture.input", "")
	viper.SetDefault("capture.samplerate", 16000)
	viper.SetDefault("capture.framems", 100)
	viper.SetDefault("capture.queuesize", 64)
	viper.SetDefault("capture.gain", 1.0)

	viper.SetDefault("detection.threshold", 0.05)
	viper.SetDefault("detection.minduration", 500*time.Millisecond)
	viper.SetDefault("detection.hangtime", 300*time.Millisecond)
	viper.SetDefault("detection.preroll", 500*time.Millisecond)
	viper.SetDefault("detection.maxduration", 60*time.Second)
	viper.SetDefault("detection.rmsvalue", "peak")

	viper.SetDefault("snippets.path", "snippets/")
	viper.SetDefault("snippets.retention.maxsnippets", 10)

	viper.SetDefault("session.startdelay", time.Duration(0))
	viper.SetDefault("session.autostop", "")
	viper.SetDefault("session.checkpointinterval", time.Minute)

	viper.SetDefault("output.sqlite.enabled", true)
	viper.SetDefault("output.sqlite.path", "nightsound.db")
	viper.SetDefault("output.mysql.enabled", false)
	viper.SetDefault("output.mysql.port", 3306)

	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.listen", "0.0.0.0:8090")

	viper.SetDefault("sentry.enabled", false)
	viper.SetDefault("sentry.dsn", "")

	viper.SetDefault("server.enabled", false)
	viper.SetDefault("server.listen", "127.0.0.1:8080")
}
