package validate

import (
	"fmt"
	"reflect"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/opshub/pkg/errors"
)

var (
	once sync.Once
	v    *validator.Validate
)

func get() *validator.Validate {
	once.Do(func() {
		v = validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(f reflect.StructField) string {
			name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
			if name == "-" {
				return ""
			}
			return name
		})
	})
	return v
}

// Struct 校验结构体，失败时返回验证错误
func Struct(s interface{}) error {
	if err := get().Struct(s); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return errors.Validation(fmt.Sprintf("%s 校验失败: %s", fe.Field(), fe.Tag()))
		}
		return errors.Validation(err.Error())
	}
	return nil
}

// Body 解析并校验请求体
func Body(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return errors.BadRequest("请求体格式错误")
	}
	return Struct(out)
}
