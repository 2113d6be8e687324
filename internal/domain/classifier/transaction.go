package classifier

import "time"

// Transaction is one parsed on-chain transaction as returned by the history
// provider. Amounts are in lamports.
type Transaction struct {
	Signature       string           `json:"signature"`
	Timestamp       int64            `json:"timestamp"`
	Type            string           `json:"type"`
	Source          string           `json:"source"`
	FeePayer        string           `json:"feePayer"`
	NativeTransfers []NativeTransfer `json:"nativeTransfers"`
	TokenTransfers  []TokenTransfer  `json:"tokenTransfers"`
	AccountData     []AccountData    `json:"accountData"`
	Events          Events           `json:"events"`
}

// NativeTransfer moves native currency between accounts.
type NativeTransfer struct {
	From   string `json:"fromUserAccount"`
	To     string `json:"toUserAccount"`
	Amount int64  `json:"amount"`
}

// TokenTransfer moves a token (fungible or not) between accounts.
type TokenTransfer struct {
	Mint   string  `json:"mint"`
	From   string  `json:"fromUserAccount"`
	To     string  `json:"toUserAccount"`
	Amount float64 `json:"tokenAmount"`
}

// AccountData carries an account's net native balance change.
type AccountData struct {
	Account             string `json:"account"`
	NativeBalanceChange int64  `json:"nativeBalanceChange"`
}

// Events holds decoded program events.
type Events struct {
	NFT *NFTEvent `json:"nft,omitempty"`
}

// NFTEvent is a marketplace event decoded by the provider.
type NFTEvent struct {
	Type   string   `json:"type"`
	Amount int64    `json:"amount"`
	Buyer  string   `json:"buyer"`
	Seller string   `json:"seller"`
	Source string   `json:"source"`
	NFTs   []NFTRef `json:"nfts"`
}

// NFTRef names an asset touched by an event.
type NFTRef struct {
	Mint string `json:"mint"`
}

// Time returns the transaction's block time in UTC.
func (t Transaction) Time() time.Time {
	return time.Unix(t.Timestamp, 0).UTC()
}

// movedAssets returns the distinct non-fungible mints moved by t.
func (t Transaction) movedAssets() map[string]struct{} {
	out := make(map[string]struct{})
	for _, tt := range t.TokenTransfers {
		if tt.Mint != "" && tt.Amount == 1 {
			out[tt.Mint] = struct{}{}
		}
	}
	if t.Events.NFT != nil {
		for _, n := range t.Events.NFT.NFTs {
			if n.Mint != "" {
				out[n.Mint] = struct{}{}
			}
		}
	}
	return out
}

// assetTransfer returns the token transfer record for mint, if any.
func (t Transaction) assetTransfer(mint string) (TokenTransfer, bool) {
	for _, tt := range t.TokenTransfers {
		if tt.Mint == mint {
			return tt, true
		}
	}
	return TokenTransfer{}, false
}
