// Package metaplex builds Metaplex Token Metadata instructions and decodes metadata accounts.
package metaplex

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
)

// ProgramID is the Metaplex Token Metadata program.
var ProgramID = solana.MustPublicKeyFromBase58("metaqbxxUerdq28cj1RbAWkYQm3ybzjb6a8bt518x1s")

const (
	MaxNameLength   = 32
	MaxSymbolLength = 10
	MaxURILength    = 200

	// KeyMetadataV1 is the account key of a metadata account.
	KeyMetadataV1 uint8 = 4

	instructionCreateMetadataAccountV3 uint8 = 33
	instructionUpdateMetadataAccountV2 uint8 = 15
)

var ErrNotMetadataAccount = errors.New("not a metadata account")

// MetadataAddress derives the metadata account of mint: ["metadata", program id, mint].
func MetadataAddress(mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindProgramAddress([][]byte{
		[]byte("metadata"),
		ProgramID.Bytes(),
		mint.Bytes(),
	}, ProgramID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("failed to derive metadata address of %s: %w", mint, err)
	}

	return addr, nil
}

// DataV2 is the token data written by create and update. Creators, collection and uses are
// always encoded as none.
type DataV2 struct {
	Name                 string `json:"name" yaml:"name" toml:"name"`
	Symbol               string `json:"symbol" yaml:"symbol" toml:"symbol"`
	URI                  string `json:"uri" yaml:"uri" toml:"uri"`
	SellerFeeBasisPoints uint16 `json:"sellerFeeBasisPoints" yaml:"sellerFeeBasisPoints" toml:"sellerFeeBasisPoints"`
}

// Validate checks the program limits.
func (d DataV2) Validate() error {
	switch {
	case d.Name == "":
		return errors.New("metadata name is empty")
	case len(d.Name) > MaxNameLength:
		return fmt.Errorf("metadata name is longer than %d bytes", MaxNameLength)
	case len(d.Symbol) > MaxSymbolLength:
		return fmt.Errorf("metadata symbol is longer than %d bytes", MaxSymbolLength)
	case len(d.URI) > MaxURILength:
		return fmt.Errorf("metadata uri is longer than %d bytes", MaxURILength)
	case d.SellerFeeBasisPoints > 10000:
		return errors.New("seller fee basis points above 10000")
	}

	return nil
}

func (d DataV2) MarshalWithEncoder(enc *bin.Encoder) error {
	for _, s := range []string{d.Name, d.Symbol, d.URI} {
		if err := enc.WriteString(s); err != nil {
			return err
		}
	}
	if err := enc.WriteUint16(d.SellerFeeBasisPoints, bin.LE); err != nil {
		return err
	}
	// creators, collection, uses
	for range 3 {
		if err := enc.WriteOption(false); err != nil {
			return err
		}
	}

	return nil
}

// CreateAccounts are the accounts of a CreateMetadataAccountV3 instruction.
type CreateAccounts struct {
	Mint            solana.PublicKey
	MintAuthority   solana.PublicKey
	Payer           solana.PublicKey
	UpdateAuthority solana.PublicKey
}

// NewCreateMetadataAccountV3Instruction creates the metadata account of accts.Mint.
func NewCreateMetadataAccountV3Instruction(accts CreateAccounts, data DataV2, isMutable bool) (solana.Instruction, error) {
	if err := data.Validate(); err != nil {
		return nil, err
	}

	metadata, err := MetadataAddress(accts.Mint)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err = enc.WriteUint8(instructionCreateMetadataAccountV3); err != nil {
		return nil, err
	}
	if err = data.MarshalWithEncoder(enc); err != nil {
		return nil, err
	}
	if err = enc.WriteBool(isMutable); err != nil {
		return nil, err
	}
	// collection details
	if err = enc.WriteOption(false); err != nil {
		return nil, err
	}

	return solana.NewInstruction(ProgramID, solana.AccountMetaSlice{
		solana.Meta(metadata).WRITE(),
		solana.Meta(accts.Mint),
		solana.Meta(accts.MintAuthority).SIGNER(),
		solana.Meta(accts.Payer).WRITE().SIGNER(),
		updateAuthorityMeta(accts.UpdateAuthority, accts.Payer),
		solana.Meta(solana.SystemProgramID),
		solana.Meta(solana.SysVarRentPubkey),
	}, buf.Bytes()), nil
}

// The update authority only needs to sign when it is the payer.
func updateAuthorityMeta(authority, payer solana.PublicKey) *solana.AccountMeta {
	m := solana.Meta(authority)
	if authority.Equals(payer) {
		m = m.SIGNER()
	}

	return m
}

// UpdateArgs are the optional fields of an UpdateMetadataAccountV2 instruction. Nil fields are
// left unchanged.
type UpdateArgs struct {
	Data                *DataV2
	NewUpdateAuthority  *solana.PublicKey
	PrimarySaleHappened *bool
	IsMutable           *bool
}

// NewUpdateMetadataAccountV2Instruction updates the metadata account of mint, signed by its
// current update authority.
func NewUpdateMetadataAccountV2Instruction(mint, updateAuthority solana.PublicKey, args UpdateArgs) (solana.Instruction, error) {
	if args.Data != nil {
		if err := args.Data.Validate(); err != nil {
			return nil, err
		}
	}

	metadata, err := MetadataAddress(mint)
	if err != nil {
		return nil, err
	}

	buf := new(bytes.Buffer)
	enc := bin.NewBorshEncoder(buf)
	if err = enc.WriteUint8(instructionUpdateMetadataAccountV2); err != nil {
		return nil, err
	}

	if err = enc.WriteOption(args.Data != nil); err != nil {
		return nil, err
	}
	if args.Data != nil {
		if err = args.Data.MarshalWithEncoder(enc); err != nil {
			return nil, err
		}
	}

	if err = enc.WriteOption(args.NewUpdateAuthority != nil); err != nil {
		return nil, err
	}
	if args.NewUpdateAuthority != nil {
		if err = enc.WriteBytes(args.NewUpdateAuthority.Bytes(), false); err != nil {
			return nil, err
		}
	}

	for _, b := range []*bool{args.PrimarySaleHappened, args.IsMutable} {
		if err = enc.WriteOption(b != nil); err != nil {
			return nil, err
		}
		if b != nil {
			if err = enc.WriteBool(*b); err != nil {
				return nil, err
			}
		}
	}

	return solana.NewInstruction(ProgramID, solana.AccountMetaSlice{
		solana.Meta(metadata).WRITE(),
		solana.Meta(updateAuthority).SIGNER(),
	}, buf.Bytes()), nil
}

// Creator is a verified or unverified creator share.
type Creator struct {
	Address  solana.PublicKey
	Verified bool
	Share    uint8
}

// Metadata is the leading part of a metadata account, up to is_mutable. Strings have their
// zero padding removed.
type Metadata struct {
	Key                  uint8            `json:"key" yaml:"key" toml:"key"`
	UpdateAuthority      solana.PublicKey `json:"updateAuthority" yaml:"updateAuthority" toml:"updateAuthority"`
	Mint                 solana.PublicKey `json:"mint" yaml:"mint" toml:"mint"`
	Name                 string           `json:"name" yaml:"name" toml:"name"`
	Symbol               string           `json:"symbol" yaml:"symbol" toml:"symbol"`
	URI                  string           `json:"uri" yaml:"uri" toml:"uri"`
	SellerFeeBasisPoints uint16           `json:"sellerFeeBasisPoints" yaml:"sellerFeeBasisPoints" toml:"sellerFeeBasisPoints"`
	Creators             []Creator        `json:"creators,omitempty" yaml:"creators,omitempty" toml:"creators,omitempty"`
	PrimarySaleHappened  bool             `json:"primarySaleHappened" yaml:"primarySaleHappened" toml:"primarySaleHappened"`
	IsMutable            bool             `json:"isMutable" yaml:"isMutable" toml:"isMutable"`
}

func (m *Metadata) UnmarshalWithDecoder(dec *bin.Decoder) (err error) {
	if m.Key, err = dec.ReadUint8(); err != nil {
		return err
	}
	if m.Key != KeyMetadataV1 {
		return fmt.Errorf("%w: key %d", ErrNotMetadataAccount, m.Key)
	}
	if m.UpdateAuthority, err = readPublicKey(dec); err != nil {
		return err
	}
	if m.Mint, err = readPublicKey(dec); err != nil {
		return err
	}

	for _, s := range []*string{&m.Name, &m.Symbol, &m.URI} {
		if *s, err = dec.ReadString(); err != nil {
			return err
		}
		*s = strings.TrimRight(*s, "\x00")
	}
	if m.SellerFeeBasisPoints, err = dec.ReadUint16(bin.LE); err != nil {
		return err
	}

	hasCreators, err := dec.ReadOption()
	if err != nil {
		return err
	}
	if hasCreators {
		n, err := dec.ReadUint32(bin.LE)
		if err != nil {
			return err
		}
		m.Creators = make([]Creator, 0, n)
		for range n {
			var c Creator
			if c.Address, err = readPublicKey(dec); err != nil {
				return err
			}
			if c.Verified, err = dec.ReadBool(); err != nil {
				return err
			}
			if c.Share, err = dec.ReadUint8(); err != nil {
				return err
			}
			m.Creators = append(m.Creators, c)
		}
	}

	if m.PrimarySaleHappened, err = dec.ReadBool(); err != nil {
		return err
	}
	if m.IsMutable, err = dec.ReadBool(); err != nil {
		return err
	}

	return nil
}

// MarshalWithEncoder writes the leading part of a metadata account, strings unpadded.
func (m Metadata) MarshalWithEncoder(enc *bin.Encoder) error {
	if err := enc.WriteUint8(m.Key); err != nil {
		return err
	}
	if err := enc.WriteBytes(m.UpdateAuthority.Bytes(), false); err != nil {
		return err
	}
	if err := enc.WriteBytes(m.Mint.Bytes(), false); err != nil {
		return err
	}
	for _, s := range []string{m.Name, m.Symbol, m.URI} {
		if err := enc.WriteString(s); err != nil {
			return err
		}
	}
	if err := enc.WriteUint16(m.SellerFeeBasisPoints, bin.LE); err != nil {
		return err
	}
	if err := enc.WriteOption(m.Creators != nil); err != nil {
		return err
	}
	if m.Creators != nil {
		if err := enc.WriteUint32(uint32(len(m.Creators)), bin.LE); err != nil {
			return err
		}
		for _, c := range m.Creators {
			if err := enc.WriteBytes(c.Address.Bytes(), false); err != nil {
				return err
			}
			if err := enc.WriteBool(c.Verified); err != nil {
				return err
			}
			if err := enc.WriteUint8(c.Share); err != nil {
				return err
			}
		}
	}
	if err := enc.WriteBool(m.PrimarySaleHappened); err != nil {
		return err
	}

	return enc.WriteBool(m.IsMutable)
}

// EncodeMetadata is the inverse of DecodeMetadata.
func EncodeMetadata(m Metadata) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := m.MarshalWithEncoder(bin.NewBorshEncoder(buf)); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

func readPublicKey(dec *bin.Decoder) (solana.PublicKey, error) {
	b, err := dec.ReadNBytes(solana.PublicKeyLength)
	if err != nil {
		return solana.PublicKey{}, err
	}

	return solana.PublicKeyFromBytes(b), nil
}

// DecodeMetadata decodes the data of a metadata account.
func DecodeMetadata(data []byte) (*Metadata, error) {
	var m Metadata
	if err := m.UnmarshalWithDecoder(bin.NewBorshDecoder(data)); err != nil {
		return nil, fmt.Errorf("failed to decode metadata: %w", err)
	}

	return &m, nil
}
