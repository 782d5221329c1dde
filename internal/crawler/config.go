package crawler

import "fmt"

// Default engine settings.
const (
	DefaultCheckpointEvery = 100
	DefaultLowerBound      = 0
	DefaultUpperBound      = 75000
)

// Config captures the knobs that influence an engine run. It is decoupled from
// Viper; cmd maps the loaded configuration onto it.
type Config struct {
	Window          PageWindow
	CheckpointEvery int
}

// DefaultConfig returns the settings used when nothing is configured.
func DefaultConfig() Config {
	return Config{
		Window:          PageWindow{Lower: DefaultLowerBound, Upper: DefaultUpperBound},
		CheckpointEvery: DefaultCheckpointEvery,
	}
}

// Validate checks for obviously bad configuration combinations.
func (c Config) Validate() error {
	if c.Window.Lower < 0 {
		return fmt.Errorf("crawler.page_lower_bound must be >= 0")
	}
	if c.Window.Upper <= c.Window.Lower+1 {
		return fmt.Errorf("crawler.page_upper_bound must leave at least one page above page_lower_bound")
	}
	if c.CheckpointEvery <= 0 {
		return fmt.Errorf("crawler.checkpoint_every must be > 0")
	}
	return nil
}
