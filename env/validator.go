package env

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gagliardetto/solana-go"
	"github.com/klend-harness/program"
)

// OverrideMintAuthority returns a copy of an SPL mint with its mint
// authority set to authority.
func OverrideMintAuthority(data []byte, authority solana.PublicKey) ([]byte, error) {
	if len(data) < program.MintSize {
		return nil, fmt.Errorf("mint data has %d bytes, want %d", len(data), program.MintSize)
	}
	out := append([]byte{}, data...)
	binary.LittleEndian.PutUint32(out[0:4], 1)
	copy(out[4:36], authority[:])
	return out, nil
}

type validatorAccount struct {
	Lamports   uint64    `json:"lamports"`
	Data       [2]string `json:"data"`
	Owner      string    `json:"owner"`
	Executable bool      `json:"executable"`
	RentEpoch  uint64    `json:"rentEpoch"`
	Space      int       `json:"space"`
}

type validatorAccountFile struct {
	Pubkey  string           `json:"pubkey"`
	Account validatorAccount `json:"account"`
}

// WriteValidatorAccounts writes one solana-test-validator account file per
// snapshot into outDir and returns the validator arguments loading them and
// the programs.
func (e *Env) WriteValidatorAccounts(outDir string, mintAuthority solana.PublicKey) ([]string, error) {
	if err := os.MkdirAll(outDir, os.ModePerm); err != nil {
		return nil, err
	}
	args := make([]string, 0, 3*(len(e.manifest.Accounts)+len(e.manifest.Programs)))
	for _, p := range e.manifest.Programs {
		file := e.path(p.File)
		if _, err := os.Stat(file); err != nil {
			return nil, fmt.Errorf("%w: program %s (%s)", ErrMissingFixture, p.Name, file)
		}
		args = append(args, "--bpf-program", p.Address, file)
	}
	for k := range e.manifest.Accounts {
		snapshot := &e.manifest.Accounts[k]
		data, err := e.readSnapshot(snapshot)
		if err != nil {
			return nil, err
		}
		if snapshot.TakeMintAuthority {
			if mintAuthority.IsZero() {
				return nil, fmt.Errorf("%s: mint authority takeover needs an authority", snapshot.Address)
			}
			data, err = OverrideMintAuthority(data, mintAuthority)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", snapshot.Address, err)
			}
			e.logger.Infof("mint %s authority -> %s", snapshot.Address, mintAuthority)
		}
		lamports := snapshot.Lamports
		if lamports == 0 {
			lamports = program.LamportsPerSol
		}
		body, err := json.MarshalIndent(validatorAccountFile{
			Pubkey: snapshot.Address,
			Account: validatorAccount{
				Lamports: lamports,
				Data:     [2]string{base64.StdEncoding.EncodeToString(data), "base64"},
				Owner:    snapshot.Owner,
				Space:    len(data),
			},
		}, "", "    ")
		if err != nil {
			return nil, err
		}
		file := filepath.Join(outDir, snapshot.Address+".json")
		if err := os.WriteFile(file, body, 0644); err != nil {
			return nil, err
		}
		args = append(args, "--account", snapshot.Address, file)
	}
	return args, nil
}
