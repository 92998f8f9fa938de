package cmn

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	model "github.com/node-real/greenfield-bundle-service/models"
	"github.com/node-real/greenfield-bundle-service/types"

	bundlesdk "github.com/bnb-chain/greenfield-bundle-sdk/bundle"
	bundlesdktypes "github.com/bnb-chain/greenfield-bundle-sdk/types"
)

const (
	pathFinalizeBundle = "/v1/finalizeBundle"
	pathDeleteBundle   = "/v1/deleteBundle"
	pathUploadBundle   = "/v1/uploadBundle"

	pathGetBundleInfo   = "/v1/queryBundle/%s/%s"
	pathGetBundleObject = "/v1/view/%s/%s/%s" // {bucketName}/{bundleName}/{objectName}

	bundleExpiredTime = 24 * time.Hour
)

var (
	ErrorBundleNotExist       = errors.New("the bundle not exist in bundle service")
	ErrorBundleObjectNotExist = errors.New("the bundle object not exist in bundle service")
)

type BundleClientOption interface {
	Apply(*BundleClient)
}

type BundleClientOptionFunc func(*BundleClient)

// Apply set up the option field to the client instance.
func (f BundleClientOptionFunc) Apply(client *BundleClient) {
	f(client)
}

func WithPrivateKey(privateKey []byte) BundleClientOption {
	return BundleClientOptionFunc(func(client *BundleClient) {
		client.privKey = privateKey
	})
}

// BundleClient talks to the bundle service that stores offloaded block
// payload archives. Mutating requests are signed with the archive key.
type BundleClient struct {
	hc      *http.Client
	host    string
	privKey []byte
	addr    common.Address
}

func NewBundleClient(host string, opts ...BundleClientOption) (*BundleClient, error) {
	transport := &http.Transport{
		DisableCompression:  true,
		MaxIdleConnsPerHost: 1000,
		MaxConnsPerHost:     1000,
		IdleConnTimeout:     90 * time.Second,
	}
	client := &http.Client{
		Timeout:   10 * time.Minute,
		Transport: transport,
	}
	bundleClient := &BundleClient{hc: client,
		host: host,
	}
	for _, opt := range opts {
		opt.Apply(bundleClient)
	}
	if len(bundleClient.privKey) != 0 {
		privateKey, err := crypto.ToECDSA(bundleClient.privKey)
		if err != nil {
			return nil, err
		}
		bundleClient.addr = crypto.PubkeyToAddress(privateKey.PublicKey)
	}
	return bundleClient, nil
}

// UploadAndFinalizeBundle assembles every file under bundleDir into one bundle
// and uploads it to the bundle service in its finalized form.
func (c *BundleClient) UploadAndFinalizeBundle(bundleName, bucketName, bundleDir, bundlePath string) error {
	bundleObject, _, err := bundleDirectory(bundleDir)
	if err != nil {
		return err
	}
	if err = saveBundleToFile(bundleObject, bundlePath); err != nil {
		return err
	}

	bundleFile, err := os.Open(bundlePath)
	if err != nil {
		return err
	}
	defer bundleFile.Close()
	bundleContent, err := io.ReadAll(bundleFile)
	if err != nil {
		return err
	}

	hash := sha256.Sum256(bundleContent)
	hashInHex := hex.EncodeToString(hash[:])

	body := &bytes.Buffer{}
	writer := multipart.NewWriter(body)
	filePart, err := writer.CreateFormFile("file", bundleFile.Name())
	if err != nil {
		return err
	}
	_, err = io.Copy(filePart, bytes.NewReader(bundleContent))
	if err != nil {
		return err
	}
	err = writer.Close()
	if err != nil {
		return err
	}
	headers := map[string]string{
		"Content-Type":              writer.FormDataContentType(),
		"X-Bundle-Bucket-Name":      bucketName,
		"X-Bundle-Name":             bundleName,
		"X-Bundle-File-Sha256":      hashInHex,
		"X-Bundle-Expiry-Timestamp": fmt.Sprintf("%d", time.Now().Add(bundleExpiredTime).Unix()),
	}
	resp, err := c.sendRequest(c.host+pathUploadBundle, "POST", headers, body.Bytes())
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	bodyStr, err := ReadResponseBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-OK response status: %s, err %s", resp.Status, bodyStr)
	}
	return nil
}

func (c *BundleClient) DeleteBundle(bundleName, bucketName string) error {
	headers := map[string]string{
		"Content-Type":              "application/json",
		"X-Bundle-Bucket-Name":      bucketName,
		"X-Bundle-Name":             bundleName,
		"X-Bundle-Expiry-Timestamp": fmt.Sprintf("%d", time.Now().Add(bundleExpiredTime).Unix()),
	}
	resp, err := c.sendRequest(c.host+pathDeleteBundle, "POST", headers, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	bodyStr, err := ReadResponseBody(resp)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("received non-OK response status: %s, err %s", resp.Status, bodyStr)
	}
	return nil
}

func (c *BundleClient) GetBundleInfo(bucketName, bundleName string) (*model.QueryBundleResponse, error) {
	req, err := http.NewRequest("GET", c.host+fmt.Sprintf(pathGetBundleInfo, bucketName, bundleName), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return nil, ErrorBundleNotExist
		}
		return nil, fmt.Errorf("received non-OK response status: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	bundle := &model.QueryBundleResponse{}
	return bundle, json.Unmarshal(body, bundle)
}

func (c *BundleClient) GetObject(bucketName, bundleName, objectName string) (string, error) {
	path := fmt.Sprintf(pathGetBundleObject, bucketName, bundleName, objectName)
	req, err := http.NewRequest("GET", c.host+path, nil)
	if err != nil {
		return "", err
	}
	resp, err := c.hc.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		if resp.StatusCode == http.StatusNotFound {
			return "", ErrorBundleObjectNotExist
		}
		return "", fmt.Errorf("received non-OK response status: %s", resp.Status)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *BundleClient) sendRequest(url, method string, headers map[string]string, body []byte) (*http.Response, error) {
	req, err := http.NewRequest(method, url, bytes.NewBuffer(body))
	if err != nil {
		return nil, err
	}
	for key, value := range headers {
		req.Header.Set(key, value)
	}
	signature, err := c.signMessage(types.TextHash(crypto.Keccak256([]byte(types.GetCanonicalRequest(req)))))
	if err != nil {
		return nil, err
	}
	req.Header.Set(types.HTTPHeaderAuthorization, hex.EncodeToString(signature))
	return c.hc.Do(req)
}

func ReadResponseBody(resp *http.Response) (string, error) {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *BundleClient) signMessage(message []byte) ([]byte, error) {
	privateKey, err := crypto.ToECDSA(c.privKey)
	if err != nil {
		return nil, err
	}
	signature, err := crypto.Sign(message, privateKey)
	if err != nil {
		return nil, err
	}
	return signature, err
}

func bundleDirectory(dir string) (io.ReadSeekCloser, int64, error) {
	b, err := bundlesdk.NewBundle()
	if err != nil {
		return nil, 0, err
	}
	err = filepath.Walk(dir, visit(dir, b))
	if err != nil {
		return nil, 0, err
	}
	return b.FinalizeBundle()
}

func visit(root string, b *bundlesdk.Bundle) filepath.WalkFunc {
	return func(path string, f os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if f.IsDir() {
			return nil
		}
		file, err := os.Open(path)
		if err != nil {
			return err
		}
		defer file.Close()

		relativePath, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		content, err := io.ReadAll(file)
		if err != nil {
			return err
		}
		hash := sha256.Sum256(content)
		options := &bundlesdktypes.AppendObjectOptions{
			ContentType: mime.TypeByExtension(filepath.Ext(path)),
			HashAlgo:    bundlesdktypes.HashAlgo_SHA256,
			Hash:        hash[:],
		}
		if _, err = file.Seek(0, io.SeekStart); err != nil {
			return err
		}
		_, err = b.AppendObject(relativePath, file, options)
		return err
	}
}

func saveBundleToFile(bundle io.ReadSeekCloser, filePath string) error {
	file, err := os.Create(filePath)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(file, bundle)
	return err
}
