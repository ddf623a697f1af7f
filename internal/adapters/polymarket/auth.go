package polymarket

// auth.go — autenticación del CLOB.
//
//   L1: firma EIP-712 con la private key → deriva las API credentials
//   L2: HMAC-SHA256 de cada request autenticada

import (
	"context"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/polymarket/go-order-utils/pkg/builder"
	gomodel "github.com/polymarket/go-order-utils/pkg/model"
	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polytrader/internal/domain"
)

const (
	polygonChainID = int64(137)

	clobDomainName    = "ClobAuthDomain"
	clobDomainVersion = "1"
	clobAuthMessage   = "This message attests that I control the given wallet"

	// taker cero = orden pública
	zeroAddress = "0x0000000000000000000000000000000000000000"

	// USDC y los conditional tokens usan 6 decimales on-chain.
	collateralDecimals = 6
)

type apiCredentials struct {
	APIKey     string `json:"apiKey"`
	Secret     string `json:"secret"`
	Passphrase string `json:"passphrase"`
}

// AuthClient añade L1/L2 y firma de órdenes al Client base.
type AuthClient struct {
	*Client
	privateKey   *ecdsa.PrivateKey
	address      common.Address
	orderBuilder builder.ExchangeOrderBuilder

	credsMu sync.Mutex
	creds   *apiCredentials
}

// NewAuthClient crea el cliente autenticado. Acepta la key con o sin 0x.
func NewAuthClient(base *Client, privateKeyHex string) (*AuthClient, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(strings.TrimSpace(privateKeyHex), "0x"))
	if err != nil {
		return nil, fmt.Errorf("auth: invalid private key: %w", err)
	}
	return &AuthClient{
		Client:       base,
		privateKey:   key,
		address:      crypto.PubkeyToAddress(key.PublicKey),
		orderBuilder: builder.NewExchangeOrderBuilderImpl(big.NewInt(polygonChainID), nil),
	}, nil
}

// Address devuelve la dirección de la wallet.
func (ac *AuthClient) Address() common.Address {
	return ac.address
}

// ensureCreds deriva las credentials vía L1 la primera vez y las cachea.
func (ac *AuthClient) ensureCreds(ctx context.Context) (*apiCredentials, error) {
	ac.credsMu.Lock()
	defer ac.credsMu.Unlock()
	if ac.creds != nil {
		return ac.creds, nil
	}

	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sig, err := ac.signClobAuth(ts, 0)
	if err != nil {
		return nil, fmt.Errorf("auth: sign l1: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ac.clobBase+"/auth/derive-api-key", nil)
	if err != nil {
		return nil, fmt.Errorf("auth: derive-api-key request: %w", err)
	}
	req.Header.Set("POLY_ADDRESS", ac.address.Hex())
	req.Header.Set("POLY_SIGNATURE", sig)
	req.Header.Set("POLY_TIMESTAMP", ts)
	req.Header.Set("POLY_NONCE", "0")

	resp, err := ac.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("auth: derive-api-key: %w", err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("auth: derive-api-key status %d: %s", resp.StatusCode, body)
	}

	var creds apiCredentials
	if err := json.Unmarshal(body, &creds); err != nil {
		return nil, fmt.Errorf("auth: parse creds: %w", err)
	}
	if creds.APIKey == "" || creds.Secret == "" {
		return nil, fmt.Errorf("auth: derive-api-key returned empty credentials")
	}
	ac.creds = &creds
	return ac.creds, nil
}

var (
	eip712DomainTypeHash = crypto.Keccak256Hash([]byte(
		"EIP712Domain(string name,string version,uint256 chainId)",
	))
	clobAuthTypeHash = crypto.Keccak256Hash([]byte(
		"ClobAuth(address address,string timestamp,uint256 nonce,string message)",
	))
	clobAuthDomainSeparator = crypto.Keccak256Hash(
		eip712DomainTypeHash.Bytes(),
		crypto.Keccak256([]byte(clobDomainName)),
		crypto.Keccak256([]byte(clobDomainVersion)),
		common.LeftPadBytes(big.NewInt(polygonChainID).Bytes(), 32),
	)
)

// signClobAuth firma el typed data ClobAuth de L1.
func (ac *AuthClient) signClobAuth(timestamp string, nonce int64) (string, error) {
	structHash := crypto.Keccak256Hash(
		clobAuthTypeHash.Bytes(),
		common.LeftPadBytes(ac.address.Bytes(), 32),
		crypto.Keccak256([]byte(timestamp)),
		common.LeftPadBytes(big.NewInt(nonce).Bytes(), 32),
		crypto.Keccak256([]byte(clobAuthMessage)),
	)
	digest := crypto.Keccak256Hash([]byte{0x19, 0x01}, clobAuthDomainSeparator.Bytes(), structHash.Bytes())

	sig, err := crypto.Sign(digest.Bytes(), ac.privateKey)
	if err != nil {
		return "", err
	}
	sig[64] += 27
	return fmt.Sprintf("0x%x", sig), nil
}

// l2Headers arma los headers HMAC para una request L2.
func l2Headers(creds *apiCredentials, address common.Address, method, path, body string, now time.Time) (http.Header, error) {
	ts := strconv.FormatInt(now.Unix(), 10)
	secret, err := base64.URLEncoding.DecodeString(creds.Secret)
	if err != nil {
		return nil, fmt.Errorf("auth: decode secret: %w", err)
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(ts + strings.ToUpper(method) + path + body))

	h := http.Header{}
	h.Set("POLY_ADDRESS", address.Hex())
	h.Set("POLY_SIGNATURE", base64.URLEncoding.EncodeToString(mac.Sum(nil)))
	h.Set("POLY_TIMESTAMP", ts)
	h.Set("POLY_API_KEY", creds.APIKey)
	h.Set("POLY_PASSPHRASE", creds.Passphrase)
	return h, nil
}

// doL2 ejecuta una request autenticada. Los headers se regeneran en cada
// intento para que el timestamp no caduque durante el backoff.
func (ac *AuthClient) doL2(ctx context.Context, method, path string, reqBody, out any) error {
	creds, err := ac.ensureCreds(ctx)
	if err != nil {
		return err
	}

	var body string
	if reqBody != nil {
		b, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("marshal: %w", err)
		}
		body = string(b)
	}

	return ac.do(ctx, ac.clobLimiter, func() (*http.Request, error) {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req, err := http.NewRequestWithContext(ctx, method, ac.clobBase+path, r)
		if err != nil {
			return nil, err
		}
		headers, err := l2Headers(creds, ac.address, method, path, body, time.Now())
		if err != nil {
			return nil, err
		}
		req.Header = headers
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Accept", "application/json")
		return req, nil
	}, out)
}

// orderAmounts convierte precio y shares (ya en precisión del venue) a los
// enteros de 6 decimales que firma el exchange. BUY entrega USDC y recibe
// tokens; SELL al revés. El CLOB exige usdc == price × shares exacto, por eso
// se opera en decimal y no en float.
func orderAmounts(side domain.OrderSide, price, shares float64) (maker, taker *big.Int, err error) {
	p := decimal.NewFromFloat(price)
	s := decimal.NewFromFloat(shares)
	tokens := s.Shift(collateralDecimals).Truncate(0)
	usdc := s.Mul(p).Shift(collateralDecimals).Truncate(0)
	if !tokens.IsPositive() || !usdc.IsPositive() {
		return nil, nil, fmt.Errorf("invalid amounts: price=%s shares=%s", p, s)
	}
	switch side {
	case domain.SideBuy:
		return usdc.BigInt(), tokens.BigInt(), nil
	case domain.SideSell:
		return tokens.BigInt(), usdc.BigInt(), nil
	}
	return nil, nil, fmt.Errorf("unknown side %q", side)
}

// buildSignedOrder firma una orden EIP-712 para el CTF exchange (o el
// neg-risk exchange).
func (ac *AuthClient) buildSignedOrder(req domain.SubmitRequest) (*gomodel.SignedOrder, error) {
	maker, taker, err := orderAmounts(req.Side, req.Price, req.Shares)
	if err != nil {
		return nil, err
	}

	side := gomodel.BUY
	if req.Side == domain.SideSell {
		side = gomodel.SELL
	}
	contract := gomodel.CTFExchange
	if req.NegRisk {
		contract = gomodel.NegRiskCTFExchange
	}

	signed, err := ac.orderBuilder.BuildSignedOrder(ac.privateKey, &gomodel.OrderData{
		Maker:         ac.address.Hex(),
		Taker:         zeroAddress,
		TokenId:       req.TokenID,
		MakerAmount:   maker.String(),
		TakerAmount:   taker.String(),
		FeeRateBps:    "0",
		Nonce:         "0",
		Signer:        ac.address.Hex(),
		Expiration:    "0",
		Side:          side,
		SignatureType: gomodel.EOA,
	}, contract)
	if err != nil {
		return nil, fmt.Errorf("build signed order: %w", err)
	}
	return signed, nil
}
