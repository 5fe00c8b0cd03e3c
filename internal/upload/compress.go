package upload

import (
	"bytes"

	"github.com/disintegration/imaging"
)

// compressAttempt 是一轮压缩尝试的参数。
type compressAttempt struct {
	dimension int
	quality   int
}

// compressImage 把图片向目标大小压缩：缩到最大边长以内后按质量递减重编码，
// 达到 targetBytes 即停，四轮都不达标时返回最小的一版（尽力而为）。
// 输出统一为 JPEG。
func compressImage(data []byte, maxDimension, quality int, targetBytes int64) ([]byte, error) {
	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, err
	}

	attempts := []compressAttempt{
		{dimension: maxDimension, quality: quality},
		{dimension: maxDimension, quality: quality - 20},
		{dimension: maxDimension, quality: quality - 40},
		{dimension: maxDimension / 2, quality: quality - 20},
	}

	var best []byte
	for _, attempt := range attempts {
		if attempt.quality < 10 {
			attempt.quality = 10
		}
		if attempt.dimension < 1 {
			attempt.dimension = 1
		}

		resized := imaging.Fit(img, attempt.dimension, attempt.dimension, imaging.Lanczos)

		var buf bytes.Buffer
		if err := imaging.Encode(&buf, resized, imaging.JPEG, imaging.JPEGQuality(attempt.quality)); err != nil {
			return nil, err
		}

		out := buf.Bytes()
		if int64(len(out)) <= targetBytes {
			return out, nil
		}
		if best == nil || len(out) < len(best) {
			best = append([]byte(nil), out...)
		}
	}

	return best, nil
}
