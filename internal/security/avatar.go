package security

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/vincent-petithory/dataurl"
)

// DefaultAvatarMaxBytes はアバター画像のデコード後の最大サイズ（2MiB）。
const DefaultAvatarMaxBytes = 2 << 20

// アバター検証のエラー
var (
	ErrAvatarMalformed = errors.New("data URIの形式が不正です")
	ErrAvatarNotImage  = errors.New("画像ファイルではありません")
	ErrAvatarTooLarge  = errors.New("画像サイズが上限を超えています")
	ErrAvatarURL       = errors.New("http(s)のURLではありません")
)

// allowedSchemes はアバターURLとして許可されるスキーム。
var allowedSchemes = []string{"http", "https"}

// AvatarValidator はアバター文字列を検証する。
type AvatarValidator struct {
	MaxBytes int // デコード後の最大バイト数
}

// NewAvatarValidator はAvatarValidatorを生成する。
// maxBytesが0以下の場合はDefaultAvatarMaxBytesを使用する。
func NewAvatarValidator(maxBytes int) *AvatarValidator {
	if maxBytes <= 0 {
		maxBytes = DefaultAvatarMaxBytes
	}
	return &AvatarValidator{MaxBytes: maxBytes}
}

// Validate はアバターを検証する。空文字列（未設定）は常に有効。
// data URIの場合はimage/*であることとサイズ上限を、
// それ以外はhttp/httpsの絶対URLであることを検証する。
func (v *AvatarValidator) Validate(avatar string) error {
	if avatar == "" {
		return nil
	}
	if strings.HasPrefix(strings.ToLower(avatar), "data:") {
		return v.validateDataURI(avatar)
	}
	return validateAvatarURL(avatar)
}

func (v *AvatarValidator) validateDataURI(avatar string) error {
	du, err := dataurl.DecodeString(avatar)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAvatarMalformed, err)
	}
	if !strings.EqualFold(du.MediaType.Type, "image") {
		return fmt.Errorf("%w: %s", ErrAvatarNotImage, du.MediaType.ContentType())
	}
	if len(du.Data) > v.MaxBytes {
		return fmt.Errorf("%w: %d bytes (max %d)", ErrAvatarTooLarge, len(du.Data), v.MaxBytes)
	}
	return nil
}

// validateAvatarURL はDNS解決を伴わない静的な検証を行う。
func validateAvatarURL(raw string) error {
	parsed, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrAvatarURL, err)
	}

	scheme := strings.ToLower(parsed.Scheme)
	if !isAllowedScheme(scheme) {
		return fmt.Errorf("%w: scheme %q", ErrAvatarURL, scheme)
	}
	if parsed.Hostname() == "" {
		return fmt.Errorf("%w: empty host", ErrAvatarURL)
	}
	return nil
}

// isAllowedScheme はURLスキームが許可リストに含まれるかを検証する。
func isAllowedScheme(scheme string) bool {
	for _, s := range allowedSchemes {
		if s == scheme {
			return true
		}
	}
	return false
}
