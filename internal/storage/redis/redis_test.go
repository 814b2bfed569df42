package redis

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/vadimbarashkov/keyurl/internal/storage"
)

type StorageTestSuite struct {
	suite.Suite
	mr      *miniredis.Miniredis
	storage *Storage
}

func (suite *StorageTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	if err != nil {
		suite.T().Fatalf("Failed to start miniredis: %v", err)
	}
	suite.T().Cleanup(mr.Close)

	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	suite.T().Cleanup(func() {
		client.Close()
	})

	suite.mr = mr
	suite.storage = NewWithClient(client)
}

func (suite *StorageTestSuite) TestGet() {
	ctx := context.Background()

	suite.Run("missing key", func() {
		val, err := suite.storage.Get(ctx, "missing", "url")

		suite.ErrorIs(err, storage.ErrKeyNotFound)
		suite.Empty(val)
	})

	suite.Run("missing field of existing key", func() {
		suite.mr.HSet("rec", "url", "https://example.com")

		val, err := suite.storage.Get(ctx, "rec", "key")

		suite.ErrorIs(err, storage.ErrKeyNotFound)
		suite.Empty(val)
	})

	suite.Run("success", func() {
		suite.mr.HSet("rec", "url", "https://example.com")

		val, err := suite.storage.Get(ctx, "rec", "url")

		suite.NoError(err)
		suite.Equal("https://example.com", val)
	})
}

func (suite *StorageTestSuite) TestSet() {
	ctx := context.Background()

	suite.Run("writes all fields", func() {
		err := suite.storage.Set(ctx, "rec", map[string]string{
			"url":   "https://example.com",
			"key":   "abc",
			"stats": "0",
		})

		suite.NoError(err)
		suite.Equal("https://example.com", suite.mr.HGet("rec", "url"))
		suite.Equal("abc", suite.mr.HGet("rec", "key"))
		suite.Equal("0", suite.mr.HGet("rec", "stats"))
	})

	suite.Run("merges fields into existing record", func() {
		suite.mr.HSet("rec", "url", "https://example.com", "key", "abc")

		err := suite.storage.Set(ctx, "rec", map[string]string{"key": "xyz"})

		suite.NoError(err)
		suite.Equal("xyz", suite.mr.HGet("rec", "key"))
		suite.Equal("https://example.com", suite.mr.HGet("rec", "url"))
	})
}

func (suite *StorageTestSuite) TestIncrement() {
	ctx := context.Background()

	suite.Run("missing field counts as zero", func() {
		val, err := suite.storage.Increment(ctx, "rec", "stats", 1)

		suite.NoError(err)
		suite.EqualValues(1, val)
	})

	suite.Run("success", func() {
		suite.mr.HSet("rec", "stats", "41")

		val, err := suite.storage.Increment(ctx, "rec", "stats", 1)

		suite.NoError(err)
		suite.EqualValues(42, val)
	})
}

func (suite *StorageTestSuite) TestDelete() {
	ctx := context.Background()

	suite.Run("missing key is not an error", func() {
		suite.NoError(suite.storage.Delete(ctx, "missing"))
	})

	suite.Run("removes the whole record", func() {
		suite.mr.HSet("rec", "url", "https://example.com", "key", "abc", "stats", "3")

		suite.NoError(suite.storage.Delete(ctx, "rec"))
		suite.False(suite.mr.Exists("rec"))
	})
}

func (suite *StorageTestSuite) TestScan() {
	ctx := context.Background()

	suite.Run("matches pattern", func() {
		suite.mr.HSet("keyurl:url:abc", "url", "https://example.com")
		suite.mr.HSet("keyurl:url:def", "url", "https://example.org")
		suite.mr.HSet("other:abc", "url", "https://example.net")

		var keys []string
		err := suite.storage.Scan(ctx, "keyurl:url:*", func(key string) error {
			keys = append(keys, key)
			return nil
		})

		suite.NoError(err)
		suite.ElementsMatch([]string{"keyurl:url:abc", "keyurl:url:def"}, keys)
	})

	suite.Run("stops on callback error", func() {
		suite.mr.HSet("keyurl:url:abc", "url", "https://example.com")

		err := suite.storage.Scan(ctx, "keyurl:url:*", func(string) error {
			return assert.AnError
		})

		suite.ErrorIs(err, assert.AnError)
	})
}

func TestStorageTestSuite(t *testing.T) {
	suite.Run(t, new(StorageTestSuite))
}

func TestNew_ConnectionError(t *testing.T) {
	ctx := context.Background()

	st, err := New(ctx, "localhost:1")

	require.Error(t, err)
	assert.Nil(t, st)
}
