package main

import (
	"encoding/hex"
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/nowtechnologies/flashconfig"
	"github.com/nowtechnologies/flashconfig/simflash"
)

// flashSpec describes the simulated device a scenario runs against.
type flashSpec struct {
	PageSizeBytes   uint32 `yaml:"pageSizeBytes"`
	SectorSizePages uint32 `yaml:"sectorSizePages"`
	FlashSizePages  uint32 `yaml:"flashSizePages"`
}

// engineSpec mirrors flashconfig.EngineOptions, minus the Hooks and
// Logger fields which the runner supplies itself.
type engineSpec struct {
	PagesNeeded     uint32 `yaml:"pagesNeeded"`
	Copies          uint8  `yaml:"copies"`
	ReadAheadPages  uint32 `yaml:"readAheadPages"`
	MaxItemCount    uint32 `yaml:"maxItemCount"`
	InlineThreshold uint16 `yaml:"inlineThreshold"`
}

// operation is a single scenario step. Exactly one field should be set;
// this mirrors a tagged union the way nexusbase's config package decodes
// one-of-many YAML blocks.
type operation struct {
	Add    string      `yaml:"add,omitempty"`
	Set    *setOp      `yaml:"set,omitempty"`
	Get    *uint16     `yaml:"get,omitempty"`
	Commit *struct{}   `yaml:"commit,omitempty"`
	Clear  *struct{}   `yaml:"clear,omitempty"`
	Dirty  *struct{}   `yaml:"dirty,omitempty"`
}

type setOp struct {
	ID   uint16 `yaml:"id"`
	Data string `yaml:"data"`
}

type scenario struct {
	Flash      flashSpec   `yaml:"flash"`
	Engine     engineSpec  `yaml:"engine"`
	Operations []operation `yaml:"operations"`
}

func loadScenario(path string) (*scenario, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading scenario: %w", err)
	}
	var s scenario
	if err := yaml.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("parsing scenario: %w", err)
	}
	return &s, nil
}

// run executes every operation of s in order against a freshly
// simulated flash, logging each step through logger.
func (s *scenario) run(logger zerolog.Logger) error {
	flash := simflash.New(s.Flash.PageSizeBytes, s.Flash.SectorSizePages, s.Flash.FlashSizePages, logger.With().Str("component", "simflash").Logger())

	engine, err := flashconfig.NewEngine(flash, flashconfig.EngineOptions{
		PagesNeeded:     s.Engine.PagesNeeded,
		Copies:          flashconfig.Copies(s.Engine.Copies),
		ReadAheadPages:  s.Engine.ReadAheadPages,
		MaxItemCount:    s.Engine.MaxItemCount,
		InlineThreshold: s.Engine.InlineThreshold,
		Hooks:           flashconfig.NewZerologHooks(logger),
		Logger:          logger,
	})
	if err != nil {
		return fmt.Errorf("configuring engine: %w", err)
	}
	engine.Init(0)
	defer engine.Done()

	for i, op := range s.Operations {
		if err := s.runOne(engine, logger, i, op); err != nil {
			return err
		}
	}
	return nil
}

func (s *scenario) runOne(engine *flashconfig.Engine, logger zerolog.Logger, i int, op operation) error {
	switch {
	case op.Add != "":
		data, err := hex.DecodeString(op.Add)
		if err != nil {
			return fmt.Errorf("operation %d: decoding add payload: %w", i, err)
		}
		id := engine.AddConfig(data)
		logger.Info().Int("op", i).Uint16("id", id).Msg("add")
	case op.Set != nil:
		data, err := hex.DecodeString(op.Set.Data)
		if err != nil {
			return fmt.Errorf("operation %d: decoding set payload: %w", i, err)
		}
		engine.SetConfig(op.Set.ID, data)
		logger.Info().Int("op", i).Uint16("id", op.Set.ID).Msg("set")
	case op.Get != nil:
		data := engine.GetConfig(*op.Get)
		logger.Info().Int("op", i).Uint16("id", *op.Get).Str("data", hex.EncodeToString(data)).Msg("get")
	case op.Commit != nil:
		engine.Commit()
		logger.Info().Int("op", i).Msg("commit")
	case op.Clear != nil:
		engine.Clear()
		logger.Info().Int("op", i).Msg("clear")
	case op.Dirty != nil:
		engine.MakeAllDirty()
		logger.Info().Int("op", i).Msg("dirty")
	default:
		return fmt.Errorf("operation %d: no action specified", i)
	}
	return nil
}
