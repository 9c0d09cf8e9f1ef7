package game

import (
	"regexp"
	"strings"
)

func init() {
	Register(&source{})
}

// source handles generic SRCDS servers (CS, TF2, GMod and friends). The
// `status` command lists players as:
//
//	#  1 "Alice" STEAM_1:0:11111 05:12 64 0 active
var sourcePlayerRe = regexp.MustCompile(`^\s*#\s*\d+\s+"(.+?)"`)

type source struct{}

func (s *source) Kind() string              { return "source" }
func (s *source) PlayerListCommand() string { return "status" }

// SRCDS worlds have no save concept; the maintenance slot runs a benign
// version check instead.
func (s *source) SaveCommand() string { return "version" }

func (s *source) PingCommand() string { return "echo warden" }

func (s *source) ParsePlayerList(text string) ([]string, error) {
	if !strings.Contains(text, "#") && !strings.Contains(text, "hostname") {
		return nil, &ParseError{Kind: s.Kind(), Reason: "missing status table"}
	}

	var players []string
	for _, line := range strings.Split(text, "\n") {
		if m := sourcePlayerRe.FindStringSubmatch(line); m != nil {
			if name := strings.TrimSpace(m[1]); name != "" {
				players = append(players, name)
			}
		}
	}

	return players, nil
}
