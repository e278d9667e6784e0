package contacts

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	xerrors "SuiAgent/internal/errors"
	"SuiAgent/internal/walrus"
	"SuiAgent/pkg/logger"
)

// Contact 是通讯录中的一条联系人记录。
// 这些字段只在加解密边界内出现明文，存储层永远只见密文。
type Contact struct {
	Name    string `json:"name"`
	Address string `json:"address"`
	Notes   string `json:"notes,omitempty"`
}

// Directory 管理用户的加密通讯录。
// 每个用户的全部联系人加密成单个 blob 存进 Walrus，
// 索引只保留地址到 blobId 的映射。
type Directory struct {
	cipher *Cipher
	store  walrus.Store
	index  BlobIndex

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewDirectory 创建通讯录实例。
func NewDirectory(cipher *Cipher, store walrus.Store, index BlobIndex) (*Directory, error) {
	if cipher == nil {
		return nil, errors.New("通讯录加密器不能为空")
	}
	if store == nil {
		return nil, errors.New("通讯录 blob 存储不能为空")
	}
	if index == nil {
		return nil, errors.New("通讯录索引不能为空")
	}
	return &Directory{
		cipher: cipher,
		store:  store,
		index:  index,
		locks:  make(map[string]*sync.Mutex),
	}, nil
}

// Save 新增或更新一条联系人。同名（忽略大小写）联系人会被覆盖。
// 整本通讯录重新加密上传，成功后才更新索引；
// 途中任何一步失败，旧的映射保持原样。
func (d *Directory) Save(ctx context.Context, userAddress, signature string, contact Contact) error {
	contact.Name = strings.TrimSpace(contact.Name)
	contact.Address = strings.TrimSpace(contact.Address)
	if contact.Name == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "联系人名称不能为空")
	}
	if contact.Address == "" {
		return xerrors.New(xerrors.CodeInvalidArgument, "联系人地址不能为空")
	}

	lock := d.addressLock(userAddress)
	lock.Lock()
	defer lock.Unlock()

	book, err := d.load(ctx, userAddress, signature)
	if err != nil {
		var coded *xerrors.Error
		// 第一次保存时还没有通讯录，从空列表开始。
		if !errors.As(err, &coded) || coded.Code() != xerrors.CodeContactsNotFound {
			return err
		}
		book = nil
	}

	replaced := false
	for i := range book {
		if strings.EqualFold(book[i].Name, contact.Name) {
			book[i] = contact
			replaced = true
			break
		}
	}
	if !replaced {
		book = append(book, contact)
	}

	plaintext, err := json.Marshal(book)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeEncryptionFailure, err, "序列化通讯录失败")
	}
	sealed, err := d.cipher.Encrypt(userAddress, signature, plaintext)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeEncryptionFailure, err, "加密通讯录失败")
	}

	result, err := d.store.Upload(ctx, sealed)
	if err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "上传通讯录失败")
	}
	if err := d.index.Put(ctx, userAddress, result.BlobID); err != nil {
		return xerrors.Wrap(xerrors.CodeStorageFailure, err, "更新通讯录索引失败")
	}

	logger.Audit().Info("contact saved",
		"user_address", userAddress,
		"blob_id", result.BlobID,
		"contact_count", len(book),
	)
	return nil
}

// List 返回用户的全部联系人，按名称排序。
// 没有通讯录时返回 CONTACTS_NOT_FOUND。
func (d *Directory) List(ctx context.Context, userAddress, signature string) ([]Contact, error) {
	book, err := d.load(ctx, userAddress, signature)
	if err != nil {
		return nil, err
	}

	sort.Slice(book, func(i, j int) bool {
		return strings.ToLower(book[i].Name) < strings.ToLower(book[j].Name)
	})
	return book, nil
}

// Resolve 按名称（忽略大小写）查找联系人地址。
// 找不到时返回 CONTACT_NOT_FOUND。
func (d *Directory) Resolve(ctx context.Context, userAddress, signature, name string) (*Contact, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "联系人名称不能为空")
	}

	book, err := d.load(ctx, userAddress, signature)
	if err != nil {
		return nil, err
	}

	for i := range book {
		if strings.EqualFold(book[i].Name, name) {
			found := book[i]
			return &found, nil
		}
	}
	return nil, xerrors.New(xerrors.CodeContactNotFound, fmt.Sprintf("联系人 %q 不存在", name))
}

func (d *Directory) load(ctx context.Context, userAddress, signature string) ([]Contact, error) {
	blobID, ok, err := d.index.Get(ctx, userAddress)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "读取通讯录索引失败")
	}
	if !ok {
		return nil, xerrors.New(xerrors.CodeContactsNotFound, "用户还没有保存过联系人")
	}

	sealed, err := d.store.Download(ctx, blobID)
	if err != nil {
		if errors.Is(err, walrus.ErrBlobNotFound) {
			return nil, xerrors.Wrap(xerrors.CodeContactsNotFound, err, "通讯录 blob 已不可用")
		}
		return nil, xerrors.Wrap(xerrors.CodeStorageFailure, err, "下载通讯录失败")
	}

	plaintext, err := d.cipher.Decrypt(userAddress, signature, sealed)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeDecryptionFailure, err, "解密通讯录失败")
	}

	var book []Contact
	if err := json.Unmarshal(plaintext, &book); err != nil {
		return nil, xerrors.Wrap(xerrors.CodeDecryptionFailure, err, "解析通讯录失败")
	}
	return book, nil
}

// addressLock 返回用户地址对应的互斥锁，保证同一用户的写入串行。
func (d *Directory) addressLock(userAddress string) *sync.Mutex {
	key := normalizeAddress(userAddress)

	d.mu.Lock()
	defer d.mu.Unlock()

	lock, ok := d.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		d.locks[key] = lock
	}
	return lock
}
