package settlebank

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gridseoul/landcell/internal/clock"
	"github.com/gridseoul/landcell/internal/settlement/application"
)

const (
	hdInfoApprove = "IA_APPROV_1.0_1.0"
	apiVersion    = "2.0"
)

// Request timestamps and signatures are computed in Korea Standard Time,
// which is what the gateway validates against.
var kst = time.FixedZone("KST", 9*60*60)

type Config struct {
	ApproveURL string
	CancelURL  string
	MerchantID string
	AuthKey    string
}

// Client talks to the Settlebank "my account" payment API. Every request is
// signed with a SHA-256 digest over the merchant credentials and the request
// timestamp.
type Client struct {
	log   *slog.Logger
	cfg   Config
	http  *http.Client
	clock clock.Clock
}

func NewClient(log *slog.Logger, cfg Config, clk clock.Clock) *Client {
	return &Client{
		log:   log,
		cfg:   cfg,
		http:  &http.Client{Timeout: 10 * time.Second},
		clock: clk,
	}
}

type approveRequest struct {
	HdInfo     string `json:"hdInfo"`
	APIVer     string `json:"apiVer"`
	MercntID   string `json:"mercntId"`
	AuthNo     string `json:"authNo"`
	ReqDay     string `json:"reqDay"`
	ReqTime    string `json:"reqTime"`
	Signature  string `json:"signature"`
}

type cancelRequest struct {
	HdInfo      string `json:"hdInfo"`
	APIVer      string `json:"apiVer"`
	MercntID    string `json:"mercntId"`
	OldTrNo     string `json:"oldTrNo"`
	OrdNo       string `json:"ordNo"`
	CancelPrice string `json:"cancelPrice"`
	ReqDay      string `json:"reqDay"`
	ReqTime     string `json:"reqTime"`
	Signature   string `json:"signature"`
}

type gatewayResponse struct {
	ResultCd  string `json:"resultCd"`
	ErrCd     string `json:"errCd"`
	ResultMsg string `json:"resultMsg"`
	TrNo      string `json:"trNo"`
	TrPrice   string `json:"trPrice"`
	OldTrNo   string `json:"oldTrNo"`
}

// Authorize asks the gateway to capture the payment the buyer authorized in
// the payment UI. A business decline comes back with Success=false and a nil
// error; only transport or protocol failures are errors.
func (c *Client) Authorize(ctx context.Context, req application.AuthorizeRequest) (application.AuthorizeResult, error) {
	now := c.clock.Now().In(kst)
	reqDay := now.Format("20060102")
	reqTime := now.Format("150405")

	body := approveRequest{
		HdInfo:    hdInfoApprove,
		APIVer:    apiVersion,
		MercntID:  c.cfg.MerchantID,
		AuthNo:    req.AuthNo,
		ReqDay:    reqDay,
		ReqTime:   reqTime,
		Signature: sha256Hex(c.cfg.MerchantID + req.AuthNo + reqDay + reqTime + c.cfg.AuthKey),
	}

	resp, err := c.post(ctx, c.cfg.ApproveURL, body)
	if err != nil {
		return application.AuthorizeResult{}, err
	}

	c.log.Info("gateway approve response",
		"order_no", req.OrderNo, "result_cd", resp.ResultCd, "err_cd", resp.ErrCd, "tr_no", resp.TrNo)

	result := application.AuthorizeResult{
		Success:    resp.ResultCd == "0",
		OrderNo:    req.OrderNo,
		ResultCode: resp.ResultCd,
		ErrorCode:  resp.ErrCd,
		Message:    resp.ResultMsg,
	}
	if result.Success {
		result.TransactionNo = resp.TrNo
		if resp.TrPrice != "" {
			price, err := strconv.ParseInt(resp.TrPrice, 10, 64)
			if err != nil {
				return application.AuthorizeResult{}, fmt.Errorf("settlebank: bad trPrice %q: %w", resp.TrPrice, err)
			}
			result.Price = price
		}
	}
	return result, nil
}

// Cancel reverses a captured payment. The cancel order number is the original
// order number with a "C" prefix, and the price travels AES-encrypted per the
// gateway's tamper-proofing scheme.
func (c *Client) Cancel(ctx context.Context, trNo, ordNo string, price int64) (application.AuthorizeResult, error) {
	now := c.clock.Now().In(kst)
	reqDay := now.Format("20060102")
	reqTime := now.Format("150405")

	trPrice := strconv.FormatInt(price, 10)
	cancelOrdNo := "C" + ordNo
	cancelPrice, err := aesECBEncryptHex(c.cfg.AuthKey, trPrice)
	if err != nil {
		return application.AuthorizeResult{}, err
	}

	body := cancelRequest{
		HdInfo:      hdInfoApprove,
		APIVer:      apiVersion,
		MercntID:    c.cfg.MerchantID,
		OldTrNo:     trNo,
		OrdNo:       cancelOrdNo,
		CancelPrice: cancelPrice,
		ReqDay:      reqDay,
		ReqTime:     reqTime,
		Signature:   sha256Hex(c.cfg.MerchantID + trNo + cancelOrdNo + trPrice + reqDay + reqTime + c.cfg.AuthKey),
	}

	resp, err := c.post(ctx, c.cfg.CancelURL, body)
	if err != nil {
		return application.AuthorizeResult{}, err
	}

	c.log.Info("gateway cancel response",
		"tr_no", trNo, "result_cd", resp.ResultCd, "err_cd", resp.ErrCd)

	result := application.AuthorizeResult{
		Success:    resp.ResultCd == "0",
		OrderNo:    cancelOrdNo,
		ResultCode: resp.ResultCd,
		ErrorCode:  resp.ErrCd,
		Message:    resp.ResultMsg,
	}
	if result.Success {
		result.TransactionNo = resp.OldTrNo
		result.Price = price
	}
	return result, nil
}

func (c *Client) post(ctx context.Context, url string, body any) (gatewayResponse, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return gatewayResponse{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(raw))
	if err != nil {
		return gatewayResponse{}, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")

	httpResp, err := c.http.Do(req)
	if err != nil {
		return gatewayResponse{}, fmt.Errorf("settlebank: %w", err)
	}
	defer httpResp.Body.Close()

	var resp gatewayResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return gatewayResponse{}, fmt.Errorf("settlebank: decode response: %w", err)
	}
	return resp, nil
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// aesECBEncryptHex mirrors the gateway SDK's price encoding: AES-256 in ECB
// mode over PKCS#7-padded input, hex-encoded. The auth key is zero-padded or
// truncated to 32 bytes.
func aesECBEncryptHex(key, plaintext string) (string, error) {
	k := make([]byte, 32)
	copy(k, key)

	block, err := aes.NewCipher(k)
	if err != nil {
		return "", err
	}

	padded := pkcs7Pad([]byte(plaintext), block.BlockSize())
	out := make([]byte, len(padded))
	for i := 0; i < len(padded); i += block.BlockSize() {
		block.Encrypt(out[i:i+block.BlockSize()], padded[i:i+block.BlockSize()])
	}
	return hex.EncodeToString(out), nil
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}
