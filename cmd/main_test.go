package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"classbazz-backend/config"
	"classbazz-backend/internal/model"
	"classbazz-backend/internal/util"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRootCommandHasSubcommands(t *testing.T) {
	cmd := newRootCommand()

	var names []string
	for _, sub := range cmd.Commands() {
		names = append(names, sub.Name())
	}
	assert.Contains(t, names, "serve")
	assert.Contains(t, names, "token")
}

func TestTokenCommand(t *testing.T) {
	t.Setenv("JWT_SECRET", "cli-secret")
	t.Setenv("DB_DRIVER", config.DriverMemory)
	t.Setenv("UPLOAD_BACKEND", config.UploadLocal)

	out := &bytes.Buffer{}
	cmd := newRootCommand()
	cmd.SetOut(out)
	cmd.SetArgs([]string{"token", "--name", "alice", "--avatar-url", "https://example.com/a.png", "--user-id", "u1"})
	require.NoError(t, cmd.Execute())

	identity, err := util.ValidateToken(strings.TrimSpace(out.String()))
	require.NoError(t, err)
	assert.Equal(t, model.Identity{Name: "alice", AvatarURL: "https://example.com/a.png", UserID: "u1"}, identity)
}

func TestTokenCommandRequiresFlags(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"token", "--name", "alice"})
	assert.Error(t, cmd.Execute())
}

func TestOpenPostRepository(t *testing.T) {
	ctx := context.Background()

	repo, closer, err := openPostRepository(ctx, config.Config{DBDriver: config.DriverMemory})
	require.NoError(t, err)
	assert.NotNil(t, repo)
	assert.NoError(t, closer.Close())

	repo, closer, err = openPostRepository(ctx, config.Config{
		DBDriver:   config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "classbazz.db"),
	})
	require.NoError(t, err)
	defer closer.Close()

	post := &model.Post{Kind: model.PostKindText, Text: "hi"}
	require.NoError(t, repo.Create(ctx, post))
	n, err := repo.CountByKind(ctx, model.PostKindText)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, _, err = openPostRepository(ctx, config.Config{DBDriver: "redis"})
	assert.Error(t, err)
}
