package main

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"log"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/kudatec/karo/core"
	"github.com/kudatec/karo/core/ledger"
	inmemstore "github.com/kudatec/karo/storage/docstore/inmem"
)

func setup(t *testing.T) *commandLine {
	t.Helper()
	logger = log.New(ioutil.Discard, "", 0)

	store := inmemstore.Open()
	return &commandLine{
		store:     store,
		ledgerSvc: ledger.NewService(store, nil),
	}
}

func seedSchedule(t *testing.T, cli *commandLine) {
	t.Helper()
	rate := decimal.RequireFromString("200")
	schedule := ledger.FeeSchedule{
		Boarder: ledger.CategoryRates{OLevel: rate, ALevel: ledger.TrackRates{Sciences: rate, Commercials: rate, Arts: rate}},
		Day:     ledger.CategoryRates{OLevel: rate, ALevel: ledger.TrackRates{Sciences: rate, Commercials: rate, Arts: rate}},
	}
	if _, err := cli.ledgerSvc.UpdateFeeSchedule(context.Background(), schedule, "admin-cli"); err != nil {
		t.Fatalf("seedSchedule() failed: %v", err)
	}
}

type cliTest struct {
	name    string
	args    []string // without program name
	pwd     string
	wantErr error
}

func Test_commandLine_createAdmin(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no username", args: []string{"createadmin"}, wantErr: errHelp},
		{name: "username but no password", args: []string{"createadmin", "-username", "head"}, wantErr: errHelp},
		{name: "created", args: []string{"createadmin", "-username", "Head"}, pwd: "s3cretpwd"},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			return []byte(tt.pwd), nil
		}

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	// the credential record landed, username lowercased, password hashed
	users := make(map[string]ledger.User)
	if err := cli.store.Get(context.Background(), ledger.UsersRoot, &users); err != nil {
		t.Fatalf("reading users: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("users = %d; want 1", len(users))
	}
	for _, usr := range users {
		if usr.Username != "head" {
			t.Errorf("username = %q; want head", usr.Username)
		}
		if usr.Role != ledger.RoleAdmin {
			t.Errorf("role = %q; want admin", usr.Role)
		}
		if err := usr.CheckPassword("s3cretpwd"); err != nil {
			t.Errorf("CheckPassword() failed: %v", err)
		}
	}

	// a second admin with the same username (any casing) is rejected
	readPasswordFunc = func(fd int) ([]byte, error) {
		return []byte("otherpwd"), nil
	}
	err := cli.run([]string{"admin", "createadmin", "-username", "HEAD"})
	vErr, ok := err.(*core.ValidationError)
	if !ok {
		t.Fatalf("cli.run() error = %v; want a validation error", err)
	}
	if vErr.Err != ledger.ErrUsernameExists {
		t.Errorf("cli.run() error = %v, want %v", vErr.Err, ledger.ErrUsernameExists)
	}
}

func Test_commandLine_activateTerm(t *testing.T) {
	cli := setup(t)
	seedSchedule(t, cli)

	tests := []cliTest{
		{name: "no key", args: []string{"activateterm"}, wantErr: errHelp},
		{name: "activated", args: []string{"activateterm", "-key", "2026_T1"}},
		{name: "already active", args: []string{"activateterm", "-key", "2026_T1"}, wantErr: ledger.ErrTermActive},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	terms, err := cli.ledgerSvc.ActiveTerms(context.Background())
	if err != nil {
		t.Fatalf("ActiveTerms() failed: %v", err)
	}
	if len(terms) != 1 || terms[0] != "2026_T1" {
		t.Errorf("active terms = %v; want [2026_T1]", terms)
	}
}

func Test_commandLine_seedFees(t *testing.T) {
	cli := setup(t)

	schedule := map[string]interface{}{
		"boarder": map[string]interface{}{
			"oLevel": "400",
			"aLevel": map[string]string{"sciences": "500", "commercials": "480", "arts": "460"},
		},
		"day": map[string]interface{}{
			"oLevel": "200",
			"aLevel": map[string]string{"sciences": "250", "commercials": "240", "arts": "230"},
		},
	}
	raw, err := json.Marshal(schedule)
	if err != nil {
		t.Fatalf("marshalling schedule: %v", err)
	}
	path := filepath.Join(t.TempDir(), "schedule.json")
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		t.Fatalf("writing schedule file: %v", err)
	}

	tests := []cliTest{
		{name: "no file", args: []string{"seedfees"}, wantErr: errHelp},
		{name: "loaded", args: []string{"seedfees", "-file", path}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)
		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	got, err := cli.ledgerSvc.CurrentFeeSchedule(context.Background())
	if err != nil {
		t.Fatalf("CurrentFeeSchedule() failed: %v", err)
	}
	if !got.Day.OLevel.Equal(decimal.RequireFromString("200")) {
		t.Errorf("day o-level rate = %s; want 200", got.Day.OLevel)
	}
}
