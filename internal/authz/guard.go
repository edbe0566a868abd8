// Package authz はリソースの所有者に基づく認可判定を提供する。
//
// 判定は取得済みのレコードに対する純粋な述語であり、内部状態を持たない。
// プロジェクトとタスクへのアクセス拒否は存在を隠すためNotFoundとして返し、
// コメントの編集・削除と本人限定の操作の拒否はForbiddenとして返す。
package authz

import "github.com/hitoshi/tasktracker/internal/model"

// CheckOwnsProject はidentityがprojectの所有者であれば許可する。
// projectがnilの場合も含め、拒否はProjectNotFoundエラーとなる。
func CheckOwnsProject(identity model.Identity, project *model.Project) error {
	if project == nil || project.OwnerID != identity.ID {
		return model.NewProjectNotFoundError()
	}
	return nil
}

// CheckOwnsTaskViaProject はtaskの属するprojectをidentityが所有していれば許可する。
// projectが解決できない、またはtaskのProjectIDと一致しない場合も拒否する。
// 拒否はTaskNotFoundエラーとなる。
func CheckOwnsTaskViaProject(identity model.Identity, task *model.Task, project *model.Project) error {
	if task == nil || project == nil || task.ProjectID != project.ID || project.OwnerID != identity.ID {
		return model.NewTaskNotFoundError()
	}
	return nil
}

// CheckIsCommentAuthor はidentityがcommentの作成者であれば許可する。
// コメントの編集・削除にのみ使用する。閲覧はタスクの所有で判定する。
func CheckIsCommentAuthor(identity model.Identity, comment *model.Comment) error {
	if comment == nil || comment.AuthorID != identity.ID {
		return model.NewForbiddenError()
	}
	return nil
}

// CheckIsSelf はidentityが対象ユーザー本人であれば許可する。
func CheckIsSelf(identity model.Identity, targetUserID int64) error {
	if identity.ID != targetUserID {
		return model.NewForbiddenError()
	}
	return nil
}
