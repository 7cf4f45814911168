package node

import (
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/forgebound/ledgercore/types"
)

// genesisFile is the on-disk JSON document describing a chain's initial
// validator set and application state.
type genesisFile struct {
	ChainID     string                 `json:"chain_id"`
	GenesisTime time.Time              `json:"genesis_time"`
	Validators  []genesisFileValidator `json:"validators"`
	AppState    json.RawMessage        `json:"app_state,omitempty"`
}

type genesisFileValidator struct {
	PublicKey string `json:"public_key"`
	Power     int64  `json:"power"`
}

// loadOrGenerateGenesis loads the genesis document at path, or - if none
// exists yet - writes a single-validator genesis naming selfKey as the
// sole validator and reads it back. This mirrors loadOrGenerateKey's
// bootstrap-on-first-run behavior for the node's identity key, so a bare
// `init` + `start` produces a running single-validator chain without a
// separate genesis-authoring step.
func loadOrGenerateGenesis(path, chainID string, selfKey ed25519.PublicKey) (types.GenesisConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return types.GenesisConfig{}, fmt.Errorf("reading genesis file: %w", err)
		}

		doc := genesisFile{
			ChainID:     chainID,
			GenesisTime: time.Now().UTC(),
			Validators: []genesisFileValidator{
				{PublicKey: hex.EncodeToString(selfKey), Power: 1},
			},
		}
		encoded, marshalErr := json.MarshalIndent(doc, "", "  ")
		if marshalErr != nil {
			return types.GenesisConfig{}, fmt.Errorf("encoding genesis file: %w", marshalErr)
		}
		if writeErr := os.WriteFile(path, encoded, 0644); writeErr != nil {
			return types.GenesisConfig{}, fmt.Errorf("saving genesis file: %w", writeErr)
		}
		data = encoded
	}

	var doc genesisFile
	if err := json.Unmarshal(data, &doc); err != nil {
		return types.GenesisConfig{}, fmt.Errorf("parsing genesis file %s: %w", path, err)
	}
	if len(doc.Validators) == 0 {
		return types.GenesisConfig{}, fmt.Errorf("genesis file %s declares no validators", path)
	}

	validators := make([]*types.Validator, len(doc.Validators))
	for i, v := range doc.Validators {
		pub, decodeErr := hex.DecodeString(v.PublicKey)
		if decodeErr != nil {
			return types.GenesisConfig{}, fmt.Errorf("genesis validator %d: invalid public_key: %w", i, decodeErr)
		}
		validators[i] = &types.Validator{
			Address:     types.AddressFromPublicKey(pub),
			PublicKey:   ed25519.PublicKey(pub),
			VotingPower: v.Power,
		}
	}

	return types.GenesisConfig{
		Timestamp:  doc.GenesisTime,
		Validators: validators,
		AppState:   []byte(doc.AppState),
	}, nil
}
