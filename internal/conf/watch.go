package conf

import (
	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"

	"github.com/nightsound/nightsound-go/internal/logger"
)

// Watch reloads the settings whenever the config file changes and passes
// the validated result to onChange. Invalid edits are logged and ignored,
// leaving the previous settings in place.
func Watch(onChange func(*Settings)) {
	viper.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		log := GetLogger().With(logger.String("path", e.Name))

		settingsMutex.Lock()
		settings, err := unmarshalSettings()
		if err == nil {
			settings.Version = settingsInstance.versionOrEmpty()
			settings.BuildDate = settingsInstance.buildDateOrEmpty()
			settingsInstance = settings
		}
		settingsMutex.Unlock()

		if err != nil {
			log.Warn("ignoring invalid config change", logger.Error(err))
			return
		}
		log.Info("config reloaded")
		if onChange != nil {
			onChange(settings)
		}
	})
	viper.WatchConfig()
}

func (s *Settings) versionOrEmpty() string {
	if s == nil {
		return ""
	}
	return s.Version
}

func (s *Settings) buildDateOrEmpty() string {
	if s == nil {
		return ""
	}
	return s.BuildDate
}
