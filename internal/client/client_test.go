package client_test

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"testing"

	"github.com/phasma-db/phasmadb/internal/catalog"
	phasmaclient "github.com/phasma-db/phasmadb/internal/client"
	"github.com/phasma-db/phasmadb/internal/keyring"
	"github.com/phasma-db/phasmadb/internal/query"
	"github.com/phasma-db/phasmadb/internal/server"
	"github.com/phasma-db/phasmadb/internal/store"
	"github.com/phasma-db/phasmadb/internal/wire"
	"github.com/phasma-db/phasmadb/pkg/logging"
)

// newTestServer wires up a full phasmadbd stack bound to an ephemeral
// localhost port and registers a fresh RSA key pair for "officer".
func newTestServer(t *testing.T) (wsURL string, priv *rsa.PrivateKey) {
	t.Helper()

	st, err := store.New(&store.Config{DataDir: t.TempDir()})
	if err != nil {
		t.Fatalf("store.New: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	cat, err := catalog.New(st.DB())
	if err != nil {
		t.Fatalf("catalog.New: %v", err)
	}

	keysDir := t.TempDir()
	keys, err := server.NewKeyStore(keysDir)
	if err != nil {
		t.Fatalf("NewKeyStore: %v", err)
	}

	priv, err = rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("rsa.GenerateKey: %v", err)
	}
	pemBytes := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PUBLIC KEY",
		Bytes: x509.MarshalPKCS1PublicKey(&priv.PublicKey),
	})
	if err := os.WriteFile(keysDir+"/officer.pem", pemBytes, 0600); err != nil {
		t.Fatalf("write public key: %v", err)
	}

	srv := server.New(st, cat, keys, logging.New(&logging.Config{Level: "error"}))
	if err := srv.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(func() { srv.Stop() })

	return fmt.Sprintf("ws://%s/phasma-db", srv.Addr()), priv
}

func dialClient(t *testing.T, addr string, priv *rsa.PrivateKey) *phasmaclient.Client {
	t.Helper()
	kr, err := keyring.Generate()
	if err != nil {
		t.Fatalf("keyring.Generate: %v", err)
	}
	c, err := phasmaclient.Dial(addr, "officer", priv, kr)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	t.Cleanup(func() { c.Exit() })
	return c
}

func TestClientCreateInsertQueryLifecycle(t *testing.T) {
	addr, priv := newTestServer(t)
	c := dialClient(t, addr, priv)

	if err := c.CreateTable("officers", map[string]wire.IndexType{
		"officer_number": wire.IndexUnique,
		"officer_rank":   wire.IndexSort,
	}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	results, err := c.InsertData("officers", map[string]phasmaclient.Datum{
		"row1": {
			Indexed: map[string]interface{}{"officer_number": int64(1914), "officer_rank": int64(4)},
			Payload: map[string]string{"name": "Worf"},
		},
		"row2": {
			Indexed: map[string]interface{}{"officer_number": int64(8570), "officer_rank": int64(3)},
			Payload: map[string]string{"name": "Riker"},
		},
	})
	if err != nil {
		t.Fatalf("InsertData: %v", err)
	}
	for rowID, r := range results {
		if !r.Success {
			t.Fatalf("insert %s failed: %v", rowID, r.Err)
		}
	}

	row, err := c.QueryByID("officers", "row1", []string{"officer_number", "officer_rank"})
	if err != nil {
		t.Fatalf("QueryByID: %v", err)
	}
	if row.Indexed["officer_number"] != int64(1914) {
		t.Errorf("officer_number = %v, want 1914", row.Indexed["officer_number"])
	}

	data, err := c.QueryData("officers", query.Query{
		Filter: query.IntGt("officer_rank", 2),
		Sort:   []query.SortKey{{Column: "officer_rank", Desc: true}},
	}, []string{"officer_rank"})
	if err != nil {
		t.Fatalf("QueryData: %v", err)
	}
	if len(data) != 2 {
		t.Fatalf("QueryData returned %d rows, want 2", len(data))
	}

	count, err := c.DeleteData("officers", query.IntLt("officer_rank", 4))
	if err != nil {
		t.Fatalf("DeleteData: %v", err)
	}
	if count != 1 {
		t.Errorf("DeleteData count = %d, want 1", count)
	}

	if err := c.DropTable("officers"); err != nil {
		t.Fatalf("DropTable: %v", err)
	}
}

func TestClientDuplicateUniqueValueFails(t *testing.T) {
	addr, priv := newTestServer(t)
	c := dialClient(t, addr, priv)

	if err := c.CreateTable("officers", map[string]wire.IndexType{
		"officer_email": wire.IndexUniqueText,
	}); err != nil {
		t.Fatalf("CreateTable: %v", err)
	}

	rows := map[string]phasmaclient.Datum{
		"row1": {Indexed: map[string]interface{}{"officer_email": "dgsf@zoomer.union"}, Payload: nil},
	}
	if _, err := c.InsertData("officers", rows); err != nil {
		t.Fatalf("InsertData: %v", err)
	}

	dup := map[string]phasmaclient.Datum{
		"row2": {Indexed: map[string]interface{}{"officer_email": "dgsf@zoomer.union"}, Payload: nil},
	}
	results, err := c.InsertData("officers", dup)
	if err != nil {
		t.Fatalf("InsertData: %v", err)
	}
	if results["row2"].Success {
		t.Fatalf("expected row2 insert to fail on unique collision")
	}
	if ce, ok := results["row2"].Err.(wire.CodeError); !ok || ce.Code() != wire.ErrUniqueViolation {
		t.Errorf("row2 error = %v, want 302", results["row2"].Err)
	}
}
