package cmd

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jjenkins/lprwatch/internal/store"
)

func TestImportThenReconcile(t *testing.T) {
	dir := t.TempDir()
	root := filepath.Join(dir, "scraped_data")
	leaf := filepath.Join(root, "IL", "Lake County Sheriff", "2025-06-19")
	require.NoError(t, os.MkdirAll(leaf, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(leaf, "search_audit.csv"), []byte(
		"search_id,user_id,timestamp,camera_count,reason\n"+
			"s1,u1,2025-06-19T10:08:20.000Z,12,INVESTIGATION\n"), 0o644))

	network := filepath.Join(dir, "network.csv")
	require.NoError(t, os.WriteFile(network, []byte(
		"Time,User,Organization,Reason\n"+
			"\"6/19/2025, 10:08:20 AM UTC\",j.doe,Lake County Sheriff,INVESTIGATION\n"), 0o644))

	dbPath := filepath.Join(dir, "catalog.db")
	out := filepath.Join(dir, "mapping.csv")

	rootCmd.SetArgs([]string{"import", "--config", "", "--db", dbPath, "--root", root})
	require.NoError(t, rootCmd.Execute())

	db, err := store.NewDB(dbPath)
	require.NoError(t, err)
	n, err := store.NewAgencyStore(db).CountAgencies(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	db.Close()

	rootCmd.SetArgs([]string{"reconcile", "--config", "", "--db", dbPath, "--network", network, "--out", out})
	require.NoError(t, rootCmd.Execute())

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, "user_uuid,user_name,search_uuid,org_name\nu1,j.doe,s1,Lake County Sheriff\n", string(data))
}
