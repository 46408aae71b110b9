package image

import (
	"bytes"
	"fmt"
	"image"
	"strings"

	"granite-vision-go/src/configs"
	"granite-vision-go/src/core/utils"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/webp"
)

// Validator checks uploads before they are sent to the model
type Validator struct {
	config *configs.SecurityConfig
	logger *utils.Logger
}

func NewValidator(config *configs.SecurityConfig, logger *utils.Logger) *Validator {
	return &Validator{
		config: config,
		logger: logger,
	}
}

var executableSignatures = map[string][]byte{
	"PE":     {0x4D, 0x5A},
	"ELF":    {0x7F, 0x45, 0x4C, 0x46},
	"Mach-O": {0xCA, 0xFE, 0xBA, 0xBE},
	"ZIP":    {0x50, 0x4B, 0x03, 0x04},
}

// Validate decodes the header of data and applies the configured limits.
// Errors wrap one of the Err* values of this package.
func (v *Validator) Validate(data []byte) (Info, error) {
	info := Info{FileSize: int64(len(data))}

	if len(data) == 0 {
		return info, ErrEmpty
	}
	if v.config.MaxFileSize > 0 && info.FileSize > v.config.MaxFileSize {
		return info, fmt.Errorf("%w: %d bytes, max %d", ErrTooLarge, info.FileSize, v.config.MaxFileSize)
	}

	if v.config.EnableDeepScan {
		if name, found := scanSignatures(data); found {
			v.logger.Warn("upload starts with an executable signature: %s", name)
			return info, fmt.Errorf("%w: %s header", ErrSuspiciousData, name)
		}
	}

	config, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return info, fmt.Errorf("%w: %v", ErrUndecodable, err)
	}
	info.Format = format
	info.Width = config.Width
	info.Height = config.Height

	if !v.isFormatAllowed(format) {
		return info, fmt.Errorf("%w: %s", ErrFormat, format)
	}
	if (v.config.MaxWidth > 0 && config.Width > v.config.MaxWidth) ||
		(v.config.MaxHeight > 0 && config.Height > v.config.MaxHeight) {
		return info, fmt.Errorf("%w: %dx%d, max %dx%d", ErrDimensions,
			config.Width, config.Height, v.config.MaxWidth, v.config.MaxHeight)
	}
	if pixels := int64(config.Width) * int64(config.Height); v.config.MaxPixels > 0 && pixels > v.config.MaxPixels {
		return info, fmt.Errorf("%w: %d pixels, max %d", ErrDimensions, pixels, v.config.MaxPixels)
	}

	v.logger.Debug("image validated %v", info)
	return info, nil
}

func (v *Validator) isFormatAllowed(format string) bool {
	for _, allowed := range v.config.AllowedFormats {
		allowed = strings.ToLower(allowed)
		if allowed == "jpg" {
			allowed = "jpeg"
		}
		if allowed == format {
			return true
		}
	}
	return false
}

func scanSignatures(data []byte) (string, bool) {
	for name, signature := range executableSignatures {
		if bytes.HasPrefix(data, signature) {
			return name, true
		}
	}
	return "", false
}
