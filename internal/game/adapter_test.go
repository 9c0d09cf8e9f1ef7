package game

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustLookup(t *testing.T, kind string) Adapter {
	t.Helper()

	a, err := Lookup(kind)
	require.NoError(t, err)

	return a
}

func TestLookupUnknownKind(t *testing.T) {
	t.Parallel()

	_, err := Lookup("quake")
	assert.Error(t, err)
}

func TestKindsRegistered(t *testing.T) {
	t.Parallel()

	assert.Equal(t, []string{"ark", "minecraft", "palworld", "source"}, Kinds())
}

func TestMinecraftParse(t *testing.T) {
	t.Parallel()

	a := mustLookup(t, "minecraft")

	players, err := a.ParsePlayerList("There are 3 of a max of 20 players online: Alice, Bob, Carol")
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob", "Carol"}, players)
}

func TestMinecraftParseEmpty(t *testing.T) {
	t.Parallel()

	a := mustLookup(t, "minecraft")

	players, err := a.ParsePlayerList("There are 0 of a max of 20 players online:")
	require.NoError(t, err)
	assert.Empty(t, players)
}

func TestMinecraftParseError(t *testing.T) {
	t.Parallel()

	a := mustLookup(t, "minecraft")

	_, err := a.ParsePlayerList("Unknown command")
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestPalworldParse(t *testing.T) {
	t.Parallel()

	a := mustLookup(t, "palworld")

	resp := "name,playeruid,steamid\nAlice,334455,76561198000000001\nBob Builder,998877,76561198000000002\n"
	players, err := a.ParsePlayerList(resp)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob Builder"}, players)
}

func TestPalworldParseHeaderOnly(t *testing.T) {
	t.Parallel()

	a := mustLookup(t, "palworld")

	players, err := a.ParsePlayerList("name,playeruid,steamid")
	require.NoError(t, err)
	assert.Empty(t, players)
}

func TestPalworldParseError(t *testing.T) {
	t.Parallel()

	a := mustLookup(t, "palworld")

	_, err := a.ParsePlayerList("Server received, But no response!!")
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestArkParse(t *testing.T) {
	t.Parallel()

	a := mustLookup(t, "ark")

	resp := "0. Name: Alice\n1. Name: Bob\n"
	players, err := a.ParsePlayerList(resp)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob"}, players)
}

func TestArkParseNoPlayers(t *testing.T) {
	t.Parallel()

	a := mustLookup(t, "ark")

	players, err := a.ParsePlayerList("No Players Connected")
	require.NoError(t, err)
	assert.Empty(t, players)
}

func TestArkParseError(t *testing.T) {
	t.Parallel()

	a := mustLookup(t, "ark")

	_, err := a.ParsePlayerList("garbage without entries")
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestSourceParse(t *testing.T) {
	t.Parallel()

	a := mustLookup(t, "source")

	resp := `hostname: my tf2 server
players : 2 humans, 0 bots (24 max)
#  1 "Alice" STEAM_1:0:11111 05:12 64 0 active
#  2 "Bob The Heavy" STEAM_1:0:22222 01:07 80 0 active
`
	players, err := a.ParsePlayerList(resp)
	require.NoError(t, err)
	assert.Equal(t, []string{"Alice", "Bob The Heavy"}, players)
}

func TestSourceParseError(t *testing.T) {
	t.Parallel()

	a := mustLookup(t, "source")

	_, err := a.ParsePlayerList("bad rcon_password")
	var perr *ParseError
	assert.ErrorAs(t, err, &perr)
}

func TestAdapterCommands(t *testing.T) {
	t.Parallel()

	for kind, want := range map[string]struct{ list, save string }{
		"minecraft": {"list", "save-all"},
		"palworld":  {"ShowPlayers", "Save"},
		"ark":       {"ListPlayers", "SaveWorld"},
		"source":    {"status", "version"},
	} {
		a := mustLookup(t, kind)
		assert.Equal(t, want.list, a.PlayerListCommand(), kind)
		assert.Equal(t, want.save, a.SaveCommand(), kind)
		assert.NotEmpty(t, a.PingCommand(), kind)
	}
}
