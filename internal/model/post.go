package model

import "time"

// PostKind 帖子类型，创建后不可更改
type PostKind string

const (
	PostKindText  PostKind = "text"
	PostKindCode  PostKind = "code"
	PostKindImage PostKind = "image"
)

// PostKinds 按统计顺序列出全部帖子类型
var PostKinds = []PostKind{PostKindText, PostKindCode, PostKindImage}

// Valid 判断是否为已知的帖子类型
func (k PostKind) Valid() bool {
	switch k {
	case PostKindText, PostKindCode, PostKindImage:
		return true
	}
	return false
}

// CodeSnippet 代码帖的内容
type CodeSnippet struct {
	Language string `json:"language"`
	Content  string `json:"content"`
}

// Post 社区动态。ID 由存储层在创建时分配
type Post struct {
	ID        string       `json:"_id"`
	Kind      PostKind     `json:"kind"`
	User      Identity     `json:"user"`
	Text      string       `json:"text,omitempty"`
	Code      *CodeSnippet `json:"code,omitempty"`
	ImageURL  string       `json:"imageUrl,omitempty"`
	Reactions []Reaction   `json:"reactions"`
	Comments  []Comment    `json:"comments"`
	CreatedAt time.Time    `json:"createdAt"`
	UpdatedAt time.Time    `json:"updatedAt"`

	// Version 乐观锁版本号，每次成功保存后递增，不对客户端暴露
	Version int64 `json:"-"`
}

// Comment 帖子下的评论，只追加不删除
type Comment struct {
	ID        string     `json:"_id"`
	User      Identity   `json:"user"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"createdAt"`
	Reactions []Reaction `json:"reactions"`
}

// FindComment 按ID查找评论，返回的指针可直接修改帖子内的评论
func (p *Post) FindComment(id string) *Comment {
	for i := range p.Comments {
		if p.Comments[i].ID == id {
			return &p.Comments[i]
		}
	}
	return nil
}

// Clone 深拷贝，存储层借此避免调用方共享内部切片
func (p *Post) Clone() *Post {
	if p == nil {
		return nil
	}
	cp := *p
	if p.Code != nil {
		code := *p.Code
		cp.Code = &code
	}
	cp.Reactions = append([]Reaction{}, p.Reactions...)
	cp.Comments = make([]Comment, len(p.Comments))
	for i, c := range p.Comments {
		c.Reactions = append([]Reaction{}, c.Reactions...)
		cp.Comments[i] = c
	}
	return &cp
}

// Normalize 保证切片非 nil，序列化时输出 [] 而不是 null
func (p *Post) Normalize() {
	if p.Reactions == nil {
		p.Reactions = []Reaction{}
	}
	if p.Comments == nil {
		p.Comments = []Comment{}
	}
	for i := range p.Comments {
		if p.Comments[i].Reactions == nil {
			p.Comments[i].Reactions = []Reaction{}
		}
	}
}
