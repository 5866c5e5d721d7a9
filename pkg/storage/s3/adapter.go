package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"sort"
	"strings"

	"climdash/pkg/storage"
	"climdash/pkg/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	s3types "github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	smithyhttp "github.com/aws/smithy-go/transport/http"
)

// API 是 Adapter 用到的 S3 客户端子集，测试中可以替换为 fake
type API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	ListObjectsV2(ctx context.Context, in *s3.ListObjectsV2Input, optFns ...func(*s3.Options)) (*s3.ListObjectsV2Output, error)
}

// Adapter 实现了 storage.Backend 接口 (云盘, S3 兼容)
type Adapter struct {
	name   string
	client API
	bucket string
	prefix string // 数据在桶内的前缀，比如 "climdash"
}

// Config 用于初始化 Adapter
type Config struct {
	Endpoint        string
	Region          string
	Bucket          string
	Prefix          string
	AccessKeyID     string
	SecretAccessKey string
}

// NewAdapter 初始化 S3 客户端 (适配 AWS SDK v2 最新规范)
// 云盘对解析器是只读的：这里不会创建 Bucket。
func NewAdapter(ctx context.Context, name string, cfg Config) (*Adapter, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 %s: bucket is required", name)
	}

	// 1. 加载基础配置 (Region + Credentials)
	opts := []func(*config.LoadOptions) error{config.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" {
		// 未配置静态密钥时走默认凭据链 (环境变量 / ~/.aws / IAM Role)
		opts = append(opts, config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID, cfg.SecretAccessKey, "",
		)))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("unable to load SDK config: %w", err)
	}

	// 2. 创建 S3 客户端时，注入特定于 S3 的配置
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		// 如果指定了 Endpoint (比如 MinIO 的 localhost:9000)，则覆盖默认值
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			// MinIO 必须强制使用 Path Style
			o.UsePathStyle = true
		}
	})

	return NewAdapterWithClient(name, client, cfg.Bucket, cfg.Prefix), nil
}

// NewAdapterWithClient 使用已有的客户端构造 Adapter
func NewAdapterWithClient(name string, client API, bucket, prefix string) *Adapter {
	return &Adapter{
		name:   name,
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
	}
}

func (s *Adapter) Name() string     { return s.name }
func (s *Adapter) Kind() types.Kind { return types.KindCloud }

// objectKey 将相对路径转换为桶内 Key
func (s *Adapter) objectKey(rel string) string {
	if s.prefix == "" {
		return rel
	}
	return path.Join(s.prefix, rel)
}

func (s *Adapter) Locate(rel string) string {
	return "s3://" + s.bucket + "/" + s.objectKey(rel)
}

// isNotFound 识别各种 S3 实现的“不存在”
func isNotFound(err error) bool {
	var notFound *s3types.NotFound
	var noKey *s3types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noKey) {
		return true
	}
	// HeadObject 没有响应体，有些实现只给出 404 状态码
	var respErr *smithyhttp.ResponseError
	if errors.As(err, &respErr) && respErr.HTTPStatusCode() == http.StatusNotFound {
		return true
	}
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}

// wrapErr 把其余错误标记为不可用，ctx 的错误原样返回
func wrapErr(ctx context.Context, op string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return fmt.Errorf("%w: s3 %s: %v", storage.ErrUnavailable, op, err)
}

// Has 检查对象是否存在
func (s *Adapter) Has(ctx context.Context, rel string) (bool, error) {
	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(rel)),
	})
	if err == nil {
		return true, nil
	}
	if isNotFound(err) {
		return false, nil
	}
	return false, wrapErr(ctx, "head", err)
}

// Open 下载对象
func (s *Adapter) Open(ctx context.Context, rel string) (io.ReadCloser, error) {
	resp, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.objectKey(rel)),
	})
	if err != nil {
		// 将 AWS 的 NoSuchKey 错误映射为我们自己的 ErrNotFound
		if isNotFound(err) {
			return nil, storage.ErrNotFound
		}
		return nil, wrapErr(ctx, "get", err)
	}
	return resp.Body, nil
}

// List 利用 Delimiter 把 Key 空间当作目录树来枚举
func (s *Adapter) List(ctx context.Context, dir string) ([]storage.Entry, error) {
	prefix := s.objectKey(dir)
	if prefix != "" && prefix != "." {
		prefix += "/"
	} else {
		prefix = ""
	}

	var entries []storage.Entry
	var token *string
	for {
		resp, err := s.client.ListObjectsV2(ctx, &s3.ListObjectsV2Input{
			Bucket:            aws.String(s.bucket),
			Prefix:            aws.String(prefix),
			Delimiter:         aws.String("/"),
			ContinuationToken: token,
		})
		if err != nil {
			return nil, wrapErr(ctx, "list", err)
		}

		for _, cp := range resp.CommonPrefixes {
			name := strings.TrimSuffix(strings.TrimPrefix(aws.ToString(cp.Prefix), prefix), "/")
			if storage.ValidEntryName(name) {
				entries = append(entries, storage.Entry{Name: name, IsDir: true})
			}
		}
		for _, obj := range resp.Contents {
			name := strings.TrimPrefix(aws.ToString(obj.Key), prefix)
			// 目录占位对象 ("dir/") 和 "." / ".." 之类的 Key 跳过
			if !storage.ValidEntryName(name) {
				continue
			}
			entries = append(entries, storage.Entry{Name: name, Size: aws.ToInt64(obj.Size)})
		}

		if !aws.ToBool(resp.IsTruncated) || resp.NextContinuationToken == nil {
			break
		}
		token = resp.NextContinuationToken
	}

	// S3 没有真正的目录：空前缀等价于目录不存在
	if len(entries) == 0 {
		return nil, storage.ErrNotFound
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}
