package solana

import (
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
)

// SignatureLength is the byte length of an ed25519 signature.
const SignatureLength = 64

// MaxTransactionSize is the largest serialized transaction a validator accepts.
const MaxTransactionSize = 1232

// Signature is a 64-byte transaction signature.
type Signature [SignatureLength]byte

// String returns the base58 encoding.
func (s Signature) String() string {
	return base58.Encode(s[:])
}

// IsZero reports whether the signature slot is unfilled.
func (s Signature) IsZero() bool {
	return s == Signature{}
}

// =============================================================================
// Compact-u16
// =============================================================================

// AppendCompactU16 appends the ledger's variable-length u16 encoding.
func AppendCompactU16(dst []byte, n int) []byte {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			return append(dst, b)
		}
		dst = append(dst, b|0x80)
	}
}

// ReadCompactU16 decodes a compact-u16 and returns the value and bytes consumed.
func ReadCompactU16(src []byte) (int, int, error) {
	var v, shift int
	for i := 0; i < 3; i++ {
		if i >= len(src) {
			return 0, 0, errors.New("compact-u16: unexpected end of input")
		}
		b := src[i]
		v |= int(b&0x7f) << shift
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, errors.New("compact-u16: value too long")
}

// =============================================================================
// Message
// =============================================================================

// MessageHeader counts signer and read-only accounts.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references accounts by index into the message keys.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is a compiled legacy transaction message.
type Message struct {
	Header          MessageHeader
	AccountKeys     []PublicKey
	RecentBlockhash Hash
	Instructions    []CompiledInstruction
}

// NewMessage compiles instructions into a legacy message paid by feePayer.
// Accounts are merged by key and ordered signer-writable, signer-readonly,
// writable, readonly, with the fee payer first.
func NewMessage(feePayer PublicKey, instructions []Instruction, blockhash Hash) (*Message, error) {
	if len(instructions) == 0 {
		return nil, errors.New("message requires at least one instruction")
	}

	order := []PublicKey{feePayer}
	metas := map[PublicKey]*AccountMeta{
		feePayer: {PublicKey: feePayer, IsSigner: true, IsWritable: true},
	}
	merge := func(m AccountMeta) {
		if existing, ok := metas[m.PublicKey]; ok {
			existing.IsSigner = existing.IsSigner || m.IsSigner
			existing.IsWritable = existing.IsWritable || m.IsWritable
			return
		}
		cp := m
		metas[m.PublicKey] = &cp
		order = append(order, m.PublicKey)
	}
	for _, ix := range instructions {
		for _, acc := range ix.Accounts {
			merge(acc)
		}
		merge(AccountMeta{PublicKey: ix.ProgramID})
	}

	var signerWritable, signerReadonly, writable, readonly []PublicKey
	for _, pk := range order {
		m := metas[pk]
		switch {
		case m.IsSigner && m.IsWritable:
			signerWritable = append(signerWritable, pk)
		case m.IsSigner:
			signerReadonly = append(signerReadonly, pk)
		case m.IsWritable:
			writable = append(writable, pk)
		default:
			readonly = append(readonly, pk)
		}
	}

	keys := make([]PublicKey, 0, len(order))
	keys = append(keys, signerWritable...)
	keys = append(keys, signerReadonly...)
	keys = append(keys, writable...)
	keys = append(keys, readonly...)
	if len(keys) > 256 {
		return nil, fmt.Errorf("message references %d accounts, max 256", len(keys))
	}

	index := make(map[PublicKey]uint8, len(keys))
	for i, pk := range keys {
		index[pk] = uint8(i)
	}

	msg := &Message{
		Header: MessageHeader{
			NumRequiredSignatures:       uint8(len(signerWritable) + len(signerReadonly)),
			NumReadonlySignedAccounts:   uint8(len(signerReadonly)),
			NumReadonlyUnsignedAccounts: uint8(len(readonly)),
		},
		AccountKeys:     keys,
		RecentBlockhash: blockhash,
		Instructions:    make([]CompiledInstruction, 0, len(instructions)),
	}
	for _, ix := range instructions {
		ci := CompiledInstruction{
			ProgramIDIndex: index[ix.ProgramID],
			Accounts:       make([]uint8, len(ix.Accounts)),
			Data:           ix.Data,
		}
		for i, acc := range ix.Accounts {
			ci.Accounts[i] = index[acc.PublicKey]
		}
		msg.Instructions = append(msg.Instructions, ci)
	}
	return msg, nil
}

// Signers returns the accounts whose signatures the message requires.
func (m *Message) Signers() []PublicKey {
	return m.AccountKeys[:m.Header.NumRequiredSignatures]
}

// IsWritable reports whether the key at index i is writable.
func (m *Message) IsWritable(i int) bool {
	n := int(m.Header.NumRequiredSignatures)
	if i < n {
		return i < n-int(m.Header.NumReadonlySignedAccounts)
	}
	return i < len(m.AccountKeys)-int(m.Header.NumReadonlyUnsignedAccounts)
}

// Serialize encodes the message in the legacy wire format.
func (m *Message) Serialize() []byte {
	out := []byte{
		m.Header.NumRequiredSignatures,
		m.Header.NumReadonlySignedAccounts,
		m.Header.NumReadonlyUnsignedAccounts,
	}
	out = AppendCompactU16(out, len(m.AccountKeys))
	for _, pk := range m.AccountKeys {
		out = append(out, pk[:]...)
	}
	out = append(out, m.RecentBlockhash[:]...)
	out = AppendCompactU16(out, len(m.Instructions))
	for _, ix := range m.Instructions {
		out = append(out, ix.ProgramIDIndex)
		out = AppendCompactU16(out, len(ix.Accounts))
		out = append(out, ix.Accounts...)
		out = AppendCompactU16(out, len(ix.Data))
		out = append(out, ix.Data...)
	}
	return out
}

func parseMessage(b []byte) (*Message, error) {
	if len(b) < 3 {
		return nil, errors.New("message: truncated header")
	}
	m := &Message{Header: MessageHeader{b[0], b[1], b[2]}}
	pos := 3

	n, used, err := ReadCompactU16(b[pos:])
	if err != nil {
		return nil, fmt.Errorf("message: account count: %w", err)
	}
	pos += used
	if len(b) < pos+n*PublicKeyLength+32 {
		return nil, errors.New("message: truncated account keys")
	}
	m.AccountKeys = make([]PublicKey, n)
	for i := range m.AccountKeys {
		copy(m.AccountKeys[i][:], b[pos:pos+PublicKeyLength])
		pos += PublicKeyLength
	}
	copy(m.RecentBlockhash[:], b[pos:pos+32])
	pos += 32

	n, used, err = ReadCompactU16(b[pos:])
	if err != nil {
		return nil, fmt.Errorf("message: instruction count: %w", err)
	}
	pos += used
	m.Instructions = make([]CompiledInstruction, n)
	for i := range m.Instructions {
		if pos >= len(b) {
			return nil, errors.New("message: truncated instruction")
		}
		ci := CompiledInstruction{ProgramIDIndex: b[pos]}
		pos++

		na, used, err := ReadCompactU16(b[pos:])
		if err != nil {
			return nil, fmt.Errorf("message: instruction accounts: %w", err)
		}
		pos += used
		if len(b) < pos+na {
			return nil, errors.New("message: truncated instruction accounts")
		}
		ci.Accounts = append([]uint8{}, b[pos:pos+na]...)
		pos += na

		nd, used, err := ReadCompactU16(b[pos:])
		if err != nil {
			return nil, fmt.Errorf("message: instruction data: %w", err)
		}
		pos += used
		if len(b) < pos+nd {
			return nil, errors.New("message: truncated instruction data")
		}
		ci.Data = append([]byte{}, b[pos:pos+nd]...)
		pos += nd
		m.Instructions[i] = ci
	}
	if pos != len(b) {
		return nil, fmt.Errorf("message: %d trailing bytes", len(b)-pos)
	}
	return m, nil
}

// =============================================================================
// Transaction
// =============================================================================

// Transaction is a message plus one signature per required signer.
type Transaction struct {
	Signatures []Signature
	Message    *Message
}

// NewTransaction compiles instructions into an unsigned transaction.
func NewTransaction(feePayer PublicKey, instructions []Instruction, blockhash Hash) (*Transaction, error) {
	msg, err := NewMessage(feePayer, instructions, blockhash)
	if err != nil {
		return nil, err
	}
	return &Transaction{
		Signatures: make([]Signature, msg.Header.NumRequiredSignatures),
		Message:    msg,
	}, nil
}

// WithBlockhash returns an unsigned copy of tx stamped with a new recent
// blockhash. The account layout and instructions are shared.
func (tx *Transaction) WithBlockhash(h Hash) *Transaction {
	msg := *tx.Message
	msg.RecentBlockhash = h
	return &Transaction{
		Signatures: make([]Signature, msg.Header.NumRequiredSignatures),
		Message:    &msg,
	}
}

// Sign fills the signature slots of the given signers and fails if any
// required signature remains empty afterwards.
func (tx *Transaction) Sign(signers ...Signer) error {
	payload := tx.Message.Serialize()
	required := tx.Message.Signers()
	for _, s := range signers {
		pk := s.PublicKey()
		idx := -1
		for i, want := range required {
			if want == pk {
				idx = i
				break
			}
		}
		if idx < 0 {
			return fmt.Errorf("signer %s is not required by the transaction", pk)
		}
		sig, err := s.Sign(payload)
		if err != nil {
			return fmt.Errorf("sign with %s: %w", pk, err)
		}
		if len(sig) != SignatureLength {
			return fmt.Errorf("signer %s returned %d-byte signature", pk, len(sig))
		}
		copy(tx.Signatures[idx][:], sig)
	}
	for i, sig := range tx.Signatures {
		if sig.IsZero() {
			return fmt.Errorf("missing signature for %s", required[i])
		}
	}
	return nil
}

// VerifySignatures checks every signature against the message.
func (tx *Transaction) VerifySignatures() bool {
	payload := tx.Message.Serialize()
	required := tx.Message.Signers()
	if len(required) != len(tx.Signatures) {
		return false
	}
	for i, sig := range tx.Signatures {
		if !VerifySignature(required[i], payload, sig[:]) {
			return false
		}
	}
	return true
}

// Signature returns the first signature, which identifies the transaction.
func (tx *Transaction) Signature() Signature {
	if len(tx.Signatures) == 0 {
		return Signature{}
	}
	return tx.Signatures[0]
}

// Serialize encodes the transaction in the legacy wire format.
func (tx *Transaction) Serialize() ([]byte, error) {
	if len(tx.Signatures) != int(tx.Message.Header.NumRequiredSignatures) {
		return nil, fmt.Errorf("transaction has %d signatures, message requires %d",
			len(tx.Signatures), tx.Message.Header.NumRequiredSignatures)
	}
	out := AppendCompactU16(nil, len(tx.Signatures))
	for _, sig := range tx.Signatures {
		out = append(out, sig[:]...)
	}
	out = append(out, tx.Message.Serialize()...)
	if len(out) > MaxTransactionSize {
		return nil, fmt.Errorf("transaction is %d bytes, max %d", len(out), MaxTransactionSize)
	}
	return out, nil
}

// Base64 serializes and base64-encodes the transaction for RPC submission.
func (tx *Transaction) Base64() (string, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

// Base58 serializes and base58-encodes the transaction for bundle submission.
func (tx *Transaction) Base58() (string, error) {
	raw, err := tx.Serialize()
	if err != nil {
		return "", err
	}
	return base58.Encode(raw), nil
}

// ParseTransaction decodes a serialized legacy transaction.
func ParseTransaction(b []byte) (*Transaction, error) {
	n, used, err := ReadCompactU16(b)
	if err != nil {
		return nil, fmt.Errorf("transaction: signature count: %w", err)
	}
	pos := used
	if len(b) < pos+n*SignatureLength {
		return nil, errors.New("transaction: truncated signatures")
	}
	tx := &Transaction{Signatures: make([]Signature, n)}
	for i := range tx.Signatures {
		copy(tx.Signatures[i][:], b[pos:pos+SignatureLength])
		pos += SignatureLength
	}
	msg, err := parseMessage(b[pos:])
	if err != nil {
		return nil, err
	}
	if int(msg.Header.NumRequiredSignatures) != n {
		return nil, fmt.Errorf("transaction: %d signatures, header requires %d", n, msg.Header.NumRequiredSignatures)
	}
	tx.Message = msg
	return tx, nil
}

// ParseTransactionBase64 decodes a base64 serialized transaction.
func ParseTransactionBase64(s string) (*Transaction, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("decode base64 transaction: %w", err)
	}
	return ParseTransaction(raw)
}

// ParseTransactionBase58 decodes a base58 serialized transaction.
func ParseTransactionBase58(s string) (*Transaction, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("decode base58 transaction: %w", err)
	}
	return ParseTransaction(raw)
}
