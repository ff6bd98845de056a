package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"FromChat/internal/config"
)

// ErrUsage возвращается командой при неверных аргументах: диспетчер печатает Usage.
var ErrUsage = errors.New("usage")

// Command: подкоманда CLI.
type Command interface {
	Name() string
	Description() string
	// Usage: строка вида "send <user_id> <text> [file...]".
	Usage() string
	// Run получает аргументы без имени команды.
	Run(ctx context.Context, cfg *config.Config, args []string) error
}

// Разделы справки.
const (
	sectionAccount  = "Account"
	sectionMessages = "Messages"
)

// sectioned: команда, которая сама указывает свой раздел справки.
// Остальные попадают в sectionAccount.
type sectioned interface {
	Section() string
}

var registry = map[string]Command{}

// Out: общий writer для вывода CLI. В тестах подменяется.
var Out io.Writer = os.Stdout

// RegisterCmd добавляет команду в реестр; вызывается из init() файла команды.
func RegisterCmd(cmd Command) {
	registry[cmd.Name()] = cmd
}

// Get ищет команду по имени.
func Get(name string) (Command, bool) {
	c, ok := registry[name]
	return c, ok
}

// List возвращает команды, отсортированные по имени.
func List() []Command {
	list := make([]Command, 0, len(registry))
	for _, c := range registry {
		list = append(list, c)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name() < list[j].Name() })
	return list
}

func sectionOf(c Command) string {
	if s, ok := c.(sectioned); ok {
		return s.Section()
	}
	return sectionAccount
}

// FormatGlobalUsage собирает общую справку по разделам.
func FormatGlobalUsage() string {
	lines := []string{
		"FromChat CLI",
		"",
		"Usage:",
		"  fromchat [--base-url <host:port>] [--https] <command> [args]",
	}
	cmds := List()
	for _, section := range []string{sectionAccount, sectionMessages} {
		lines = append(lines, "", section+":")
		for _, c := range cmds {
			if sectionOf(c) != section {
				continue
			}
			lines = append(lines, fmt.Sprintf("  %-44s %s", c.Usage(), c.Description()))
		}
	}
	return strings.Join(lines, "\n") + "\n"
}
