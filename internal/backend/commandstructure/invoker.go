package commandstructure

import (
	"fmt"
	"log/slog"
	"time"
)

// CommandInvoker executes a sequence of commands on image data
type CommandInvoker struct {
	commands []Command
}

// NewCommandInvoker creates a new command invoker
func NewCommandInvoker(commands []Command) *CommandInvoker {
	return &CommandInvoker{
		commands: commands,
	}
}

// NewCommandInvokerFromConfig builds every configured command from the given registry up front,
// so a bad configuration fails before any media is touched
func NewCommandInvokerFromConfig(registry *CommandRegistry, configs []CommandConfig) (*CommandInvoker, error) {
	commands := make([]Command, 0, len(configs))
	for i, config := range configs {
		command, err := registry.Create(config.Name, config.Params)
		if err != nil {
			return nil, fmt.Errorf("failed to create command at index %d (%s): %w", i, config.Name, err)
		}
		commands = append(commands, command)
	}
	return NewCommandInvoker(commands), nil
}

// Names returns the command names in execution order
func (i *CommandInvoker) Names() []string {
	names := make([]string, 0, len(i.commands))
	for _, command := range i.commands {
		names = append(names, command.Name())
	}
	return names
}

// Execute applies all commands in sequence to the image data
func (i *CommandInvoker) Execute(imageData []byte) ([]byte, error) {
	if len(i.commands) == 0 {
		return imageData, nil
	}

	start := time.Now()
	currentData := imageData
	for idx, command := range i.commands {
		commandStart := time.Now()

		processedData, err := command.Execute(currentData)
		if err != nil {
			slog.Debug("command execution failed",
				"index", idx,
				"command_name", command.Name(),
				"error", err,
				"input_size_bytes", len(currentData))
			return nil, fmt.Errorf("command %s (index %d) failed: %w", command.Name(), idx, err)
		}

		slog.Debug("command completed",
			"index", idx,
			"command_name", command.Name(),
			"duration_ms", time.Since(commandStart).Milliseconds(),
			"input_size_bytes", len(currentData),
			"output_size_bytes", len(processedData))

		currentData = processedData
	}

	slog.Debug("image pipeline completed",
		"total_duration_ms", time.Since(start).Milliseconds(),
		"command_count", len(i.commands),
		"final_size_bytes", len(currentData))

	return currentData, nil
}
