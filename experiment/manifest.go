package experiment

import (
	"encoding/json"
	"fmt"
	"os"
	"path"
	"strings"

	"gopkg.in/yaml.v3"
)

// A Manifest describes a finished run: what was configured, when each
// sender started and what every flow and queue ended up with.
type Manifest struct {
	RunID   string          `yaml:"runID" json:"runID"`
	Config  ManifestConfig  `yaml:"config" json:"config"`
	Links   ManifestLinks   `yaml:"links" json:"links"`
	Horizon float64         `yaml:"horizon" json:"horizon"`
	Jitter  ManifestJitter  `yaml:"jitter" json:"jitter"`
	Flows   []ManifestFlow  `yaml:"flows" json:"flows"`
	Queues  []ManifestQueue `yaml:"queues,omitempty" json:"queues,omitempty"`

	BusiestQueues []ManifestQueueLevel `yaml:"busiestQueues,omitempty" json:"busiestQueues,omitempty"`

	BottleneckUtilization float64 `yaml:"bottleneckUtilization" json:"bottleneckUtilization"`
}

// ManifestConfig is the configuration part of a Manifest.
type ManifestConfig struct {
	FlowCount  uint32 `yaml:"nFlows" json:"nFlows"`
	QueueSize  uint32 `yaml:"queueSize" json:"queueSize"`
	WindowSize uint32 `yaml:"windowSize" json:"windowSize"`
	SegSize    uint32 `yaml:"segSize" json:"segSize"`
	Variant    string `yaml:"variant" json:"variant"`
}

// ManifestLinks names the two link types.
type ManifestLinks struct {
	Leaf string `yaml:"leaf" json:"leaf"`
	Core string `yaml:"core" json:"core"`
}

// ManifestJitter records how the start offsets were drawn.
type ManifestJitter struct {
	Seed   uint64  `yaml:"seed" json:"seed"`
	Stream uint64  `yaml:"stream" json:"stream"`
	Min    float64 `yaml:"min" json:"min"`
	Max    float64 `yaml:"max" json:"max"`
}

// ManifestFlow is one flow of a Manifest.
type ManifestFlow struct {
	Index         int     `yaml:"index" json:"index"`
	Sender        string  `yaml:"sender" json:"sender"`
	Receiver      string  `yaml:"receiver" json:"receiver"`
	StartOffset   float64 `yaml:"startOffset" json:"startOffset"`
	ReceivedBytes uint64  `yaml:"receivedBytes" json:"receivedBytes"`
	Goodput       float64 `yaml:"goodput" json:"goodput"`
}

// ManifestQueue is a queue that dropped packets.
type ManifestQueue struct {
	Name         string `yaml:"name" json:"name"`
	Drops        uint64 `yaml:"drops" json:"drops"`
	DroppedBytes uint64 `yaml:"droppedBytes" json:"droppedBytes"`
}

// ManifestQueueLevel is the occupancy of a queue, in the unit of its mode.
type ManifestQueueLevel struct {
	Name     string  `yaml:"name" json:"name"`
	Average  float64 `yaml:"average" json:"average"`
	Max      int     `yaml:"max" json:"max"`
	Capacity int     `yaml:"capacity" json:"capacity"`
}

// WriteToFile serializes the manifest as YAML or JSON, depending on the
// extension of filename.
func (m Manifest) WriteToFile(filename string) error {
	var (
		bytes []byte
		err   error
	)

	switch strings.ToLower(path.Ext(filename)) {
	case ".yaml", ".yml":
		bytes, err = yaml.Marshal(m)
	case ".json":
		bytes, err = json.MarshalIndent(m, "", "\t")
	default:
		return fmt.Errorf("manifest %s: extension must be .yaml, .yml or .json",
			filename)
	}

	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	return os.WriteFile(filename, bytes, 0o644)
}

// ReadManifest loads a manifest written by WriteToFile.
func ReadManifest(filename string) (Manifest, error) {
	var m Manifest

	bytes, err := os.ReadFile(filename)
	if err != nil {
		return m, err
	}

	switch strings.ToLower(path.Ext(filename)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(bytes, &m)
	case ".json":
		err = json.Unmarshal(bytes, &m)
	default:
		return m, fmt.Errorf("manifest %s: unknown extension", filename)
	}

	if err != nil {
		return m, fmt.Errorf("decoding manifest %s: %w", filename, err)
	}

	return m, nil
}
