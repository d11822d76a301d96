package review

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"mime"
	"sync"

	"github.com/shouni/go-storyboard-kit/pkg/asset"
	"github.com/shouni/go-storyboard-kit/pkg/domain"

	imagekit "github.com/shouni/gemini-image-kit/pkg/generator"
	"github.com/shouni/go-remote-io/pkg/remoteio"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// StyleAssetCache は、スタイル参照やフレーム画像（バイト列）を File API リソースへ変換するキャッシュです。
// 画像はワークディレクトリへ書き出してからアップロードし、内容ハッシュで重複アップロードを防ぎます。
type StyleAssetCache struct {
	assetManager imagekit.AssetManager
	writer       remoteio.OutputWriter
	workDir      string

	mu          sync.RWMutex
	resourceMap map[string]string // 内容ハッシュ -> FileAPIURI
	uploadGroup singleflight.Group
}

// NewStyleAssetCache は新しいキャッシュを生成します。workDir はローカルまたは gs:// のパスです。
func NewStyleAssetCache(assetManager imagekit.AssetManager, writer remoteio.OutputWriter, workDir string) *StyleAssetCache {
	return &StyleAssetCache{
		assetManager: assetManager,
		writer:       writer,
		workDir:      workDir,
		resourceMap:  make(map[string]string),
	}
}

// PrepareAll は画像群を並列にアップロードし、入力順の File API URI を返します。
func (c *StyleAssetCache) PrepareAll(ctx context.Context, images []domain.Image) ([]string, error) {
	uris := make([]string, len(images))
	eg, egCtx := errgroup.WithContext(ctx)

	for i, img := range images {
		i, img := i, img
		eg.Go(func() error {
			uri, err := c.Prepare(egCtx, img)
			if err != nil {
				return fmt.Errorf("failed to prepare style asset %d: %w", i+1, err)
			}
			uris[i] = uri
			return nil
		})
	}

	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return uris, nil
}

// Prepare は1枚の画像をアップロードし、File API URI を返します。
// 同じ内容の画像に対する同時呼び出しは singleflight で1回に集約されます。
func (c *StyleAssetCache) Prepare(ctx context.Context, img domain.Image) (string, error) {
	if img.IsEmpty() {
		return "", fmt.Errorf("空の画像はアップロードできません")
	}

	key := contentKey(img)

	// RLock でキャッシュ（マップ）を素早く確認
	c.mu.RLock()
	uri, ok := c.resourceMap[key]
	c.mu.RUnlock()
	if ok {
		return uri, nil
	}

	val, err, _ := c.uploadGroup.Do(key, func() (interface{}, error) {
		// 待機中に他のゴルーチンがアップロードを完了させている可能性があるため、再度マップを確認
		c.mu.RLock()
		existingURI, ok := c.resourceMap[key]
		c.mu.RUnlock()
		if ok {
			return existingURI, nil
		}

		path, stageErr := c.stage(ctx, key, img)
		if stageErr != nil {
			return nil, stageErr
		}

		uploadedURI, uploadErr := c.assetManager.UploadFile(ctx, path)
		if uploadErr != nil {
			return nil, uploadErr
		}

		c.mu.Lock()
		c.resourceMap[key] = uploadedURI
		c.mu.Unlock()

		return uploadedURI, nil
	})

	if err != nil {
		return "", err
	}

	uri, ok = val.(string)
	if !ok {
		return "", fmt.Errorf("unexpected return type from singleflight: %T", val)
	}
	return uri, nil
}

// stage は画像バイト列をワークディレクトリへ書き出し、そのパスを返します。
func (c *StyleAssetCache) stage(ctx context.Context, key string, img domain.Image) (string, error) {
	name := fmt.Sprintf("style_%s%s", key[:12], extensionFor(img.MimeType))
	path, err := asset.ResolveOutputPath(c.workDir, name)
	if err != nil {
		return "", fmt.Errorf("ワークファイルのパス解決に失敗しました: %w", err)
	}
	if err := c.writer.Write(ctx, path, bytes.NewReader(img.Data), img.MimeType); err != nil {
		return "", fmt.Errorf("ワークファイルの書き込みに失敗しました (path: %s): %w", path, err)
	}
	return path, nil
}

func contentKey(img domain.Image) string {
	sum := sha256.Sum256(img.Data)
	return hex.EncodeToString(sum[:])
}

// extensionFor は MIME タイプから拡張子を決定します。判定できない場合は .png を使います。
func extensionFor(mimeType string) string {
	extensions, err := mime.ExtensionsByType(mimeType)
	if err != nil || len(extensions) == 0 {
		return ".png"
	}
	return extensions[0]
}
