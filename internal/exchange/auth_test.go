package exchange

import (
	"encoding/base64"
	"math/big"
	"strings"
	"testing"

	"polymarket-boxbot/internal/config"
	"polymarket-boxbot/pkg/types"
)

// Well-known throwaway key (hardhat account #0). Never fund this wallet.
const testPrivateKey = "ac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80"
const testAddress = "0xf39Fd6e51aad88F6F4ce6aB8827279cffFb92266"

func testAuthConfig() config.Config {
	return config.Config{
		Wallet: config.WalletConfig{
			PrivateKey: testPrivateKey,
			ChainID:    137,
		},
	}
}

func newTestAuth(t *testing.T) *Auth {
	t.Helper()
	a, err := NewAuth(testAuthConfig())
	if err != nil {
		t.Fatalf("NewAuth: %v", err)
	}
	return a
}

func TestNewAuthDerivesAddress(t *testing.T) {
	t.Parallel()
	a := newTestAuth(t)

	if a.Address().Hex() != testAddress {
		t.Errorf("address = %s, want %s", a.Address().Hex(), testAddress)
	}
	// No funder configured: funder defaults to the signer.
	if a.FunderAddress() != a.Address() {
		t.Errorf("funder = %s, want signer address", a.FunderAddress().Hex())
	}
}

func TestNewAuthStripsHexPrefix(t *testing.T) {
	t.Parallel()
	cfg := testAuthConfig()
	cfg.Wallet.PrivateKey = "0x" + testPrivateKey

	a, err := NewAuth(cfg)
	if err != nil {
		t.Fatalf("NewAuth with 0x prefix: %v", err)
	}
	if a.Address().Hex() != testAddress {
		t.Errorf("address = %s, want %s", a.Address().Hex(), testAddress)
	}
}

func TestNewAuthRejectsBadKey(t *testing.T) {
	t.Parallel()
	cfg := testAuthConfig()
	cfg.Wallet.PrivateKey = "not-a-key"

	if _, err := NewAuth(cfg); err == nil {
		t.Error("expected error for malformed private key")
	}
}

func TestHasL2Credentials(t *testing.T) {
	t.Parallel()
	a := newTestAuth(t)

	if a.HasL2Credentials() {
		t.Error("fresh auth should have no L2 credentials")
	}

	a.SetCredentials(Credentials{ApiKey: "key", Secret: "c2VjcmV0", Passphrase: "pass"})
	if !a.HasL2Credentials() {
		t.Error("credentials set but HasL2Credentials is false")
	}
}

func TestL1Headers(t *testing.T) {
	t.Parallel()
	a := newTestAuth(t)

	headers, err := a.L1Headers(0)
	if err != nil {
		t.Fatalf("L1Headers: %v", err)
	}

	if headers["POLY_ADDRESS"] != testAddress {
		t.Errorf("POLY_ADDRESS = %s, want %s", headers["POLY_ADDRESS"], testAddress)
	}
	if headers["POLY_NONCE"] != "0" {
		t.Errorf("POLY_NONCE = %s, want 0", headers["POLY_NONCE"])
	}
	sig := headers["POLY_SIGNATURE"]
	if !strings.HasPrefix(sig, "0x") || len(sig) != 132 {
		t.Errorf("signature malformed: %q (len %d)", sig, len(sig))
	}
	if headers["POLY_TIMESTAMP"] == "" {
		t.Error("POLY_TIMESTAMP missing")
	}
}

func TestL2HeadersDeterministicHMAC(t *testing.T) {
	t.Parallel()
	a := newTestAuth(t)
	secret := base64.URLEncoding.EncodeToString([]byte("test-secret-bytes"))
	a.SetCredentials(Credentials{ApiKey: "key", Secret: secret, Passphrase: "pass"})

	sig1, err := a.buildHMAC("1700000000", "POST", "/orders", `{"x":1}`)
	if err != nil {
		t.Fatalf("buildHMAC: %v", err)
	}
	sig2, err := a.buildHMAC("1700000000", "POST", "/orders", `{"x":1}`)
	if err != nil {
		t.Fatalf("buildHMAC: %v", err)
	}
	if sig1 != sig2 {
		t.Error("HMAC not deterministic for identical inputs")
	}

	// Any component change must change the signature.
	changed, _ := a.buildHMAC("1700000000", "POST", "/orders", `{"x":2}`)
	if changed == sig1 {
		t.Error("body change did not change the HMAC")
	}
	changed, _ = a.buildHMAC("1700000001", "POST", "/orders", `{"x":1}`)
	if changed == sig1 {
		t.Error("timestamp change did not change the HMAC")
	}

	// Output must itself be URL-safe base64.
	if _, err := base64.URLEncoding.DecodeString(sig1); err != nil {
		t.Errorf("signature is not URL-safe base64: %v", err)
	}
}

func TestBuildHMACAcceptsStdEncodedSecret(t *testing.T) {
	t.Parallel()
	a := newTestAuth(t)

	// Standard base64 with padding also decodes.
	a.SetCredentials(Credentials{Secret: base64.StdEncoding.EncodeToString([]byte{0xfb, 0xef, 0x01})})
	if _, err := a.buildHMAC("1", "GET", "/x", ""); err != nil {
		t.Errorf("std-encoded secret rejected: %v", err)
	}
}

func TestSignOrder(t *testing.T) {
	t.Parallel()
	a := newTestAuth(t)

	order := types.SignedOrder{
		Salt:          "12345",
		Maker:         testAddress,
		Signer:        testAddress,
		Taker:         "0x0000000000000000000000000000000000000000",
		TokenID:       "7",
		MakerAmount:   big.NewInt(2_450_000),
		TakerAmount:   big.NewInt(5_000_000),
		Side:          types.BUY,
		Expiration:    "0",
		Nonce:         "0",
		FeeRateBps:    "0",
		SignatureType: types.SigEOA,
	}

	sig, err := a.SignOrder(&order)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	if !strings.HasPrefix(sig, "0x") || len(sig) != 132 {
		t.Errorf("signature malformed: %q (len %d)", sig, len(sig))
	}

	// ECDSA over a fixed hash with the same key is deterministic (RFC 6979).
	sig2, err := a.SignOrder(&order)
	if err != nil {
		t.Fatalf("SignOrder: %v", err)
	}
	if sig != sig2 {
		t.Error("order signature not deterministic")
	}

	// SELL flips the side byte in the struct hash.
	sellOrder := order
	sellOrder.Side = types.SELL
	sellSig, err := a.SignOrder(&sellOrder)
	if err != nil {
		t.Fatalf("SignOrder sell: %v", err)
	}
	if sellSig == sig {
		t.Error("BUY and SELL orders produced identical signatures")
	}
}

func TestPriceToAmounts(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		price   float64
		size    float64
		side    types.Side
		wantMkr int64 // 6-decimal USDC units
		wantTkr int64
	}{
		{
			name:    "BUY at 0.50, size 100",
			price:   0.50,
			size:    100.0,
			side:    types.BUY,
			wantMkr: 50_000_000,
			wantTkr: 100_000_000,
		},
		{
			name:    "SELL at 0.50, size 100",
			price:   0.50,
			size:    100.0,
			side:    types.SELL,
			wantMkr: 100_000_000,
			wantTkr: 50_000_000,
		},
		{
			name:    "BUY at 0.49, size 5",
			price:   0.49,
			size:    5.0,
			side:    types.BUY,
			wantMkr: 2_450_000, // 5 * 0.49 = 2.45 USDC
			wantTkr: 5_000_000,
		},
		{
			name:    "size truncated to 2 decimals",
			price:   0.55,
			size:    1.999, // becomes 1.99
			side:    types.BUY,
			wantMkr: 1_094_500, // 1.99 * 0.55 = 1.0945
			wantTkr: 1_990_000,
		},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			mkr, tkr := PriceToAmounts(tt.price, tt.size, tt.side)

			if mkr.Cmp(big.NewInt(tt.wantMkr)) != 0 {
				t.Errorf("makerAmount = %s, want %d", mkr.String(), tt.wantMkr)
			}
			if tkr.Cmp(big.NewInt(tt.wantTkr)) != 0 {
				t.Errorf("takerAmount = %s, want %d", tkr.String(), tt.wantTkr)
			}
		})
	}
}

func TestPriceToAmountsSellMirrorsBuy(t *testing.T) {
	t.Parallel()

	buyMkr, buyTkr := PriceToAmounts(0.60, 50.0, types.BUY)
	sellMkr, sellTkr := PriceToAmounts(0.60, 50.0, types.SELL)

	if buyMkr.Cmp(sellTkr) != 0 {
		t.Errorf("BUY maker (%s) != SELL taker (%s)", buyMkr, sellTkr)
	}
	if buyTkr.Cmp(sellMkr) != 0 {
		t.Errorf("BUY taker (%s) != SELL maker (%s)", buyTkr, sellMkr)
	}
}
